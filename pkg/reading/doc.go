// Package reading defines the sensor reading, its canonical payload and the
// validator that turns a candidate frame into one.
//
// A candidate frame is a JSON object carrying a raw-line string and a nested
// object with exactly six numeric sensor fields:
//
//	{"line":"STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513",
//	 "json":{"soil":395,"temp":22.9,"hum":19.0,"mq2":85,"rain":1020,"bio":513}}
//
// Validate is the only constructor of an accepted Payload from untrusted
// input. A Payload is immutable; its wire encoding is computed once from the
// structured Reading, so two frames describing the same reading encode to the
// same bytes regardless of how they arrived.
package reading
