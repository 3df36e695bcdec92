// Package config loads gateway configuration.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// sprout.json or sprout.yaml file, environment variables, and finally CLI
// flags applied by the caller before Validate.
//
// # Configuration File Structure
//
//	serial:
//	  port: /dev/ttyUSB0
//	  baudRate: 9600
//	  reconnect:
//	    initial: 1s
//	    max: 30s
//	    multiplier: 2
//	http:
//	  port: 3000
//	  allowedOrigins: ["http://localhost:5173"]
//	hub:
//	  heartbeat: 1s
//	  queueSize: 16
//	  writeTimeout: 5s
//	sinks:
//	  mqtt:
//	    broker: tcp://localhost:1883
//	    topic: sprout/readings
//
// # Environment
//
//	SERIAL_PORT, BAUD_RATE, PORT, SPROUT_HEARTBEAT, SPROUT_DISABLE_SERIAL,
//	SPROUT_ALLOWED_ORIGINS, SPROUT_MQTT_BROKER, SPROUT_MQTT_TOPIC,
//	SPROUT_KAFKA_BROKERS, SPROUT_KAFKA_TOPIC, SPROUT_S3_BUCKET, SPROUT_S3_KEY,
//	SPROUT_S3_REGION, SPROUT_S3_ENDPOINT
//
// # Usage
//
//	cfg, err := config.Resolve("", os.LookupEnv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Listening on", cfg.HTTP.Addr())
package config
