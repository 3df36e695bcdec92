// Package sink forwards broadcasts to external systems.
//
// Every sink is an ordinary hub.Subscriber, registered with Hub.Subscribe at
// startup. A sink swallows transient delivery failures (it logs and counts
// them) so a broker outage does not get it evicted from the hub; Send only
// fails after Close.
//
//	mq, err := sink.DialMQTT(ctx, sink.MQTTConfig{Broker: "tcp://broker:1883"})
//	if err != nil {
//	    return err
//	}
//	hub.Subscribe(mq)
package sink
