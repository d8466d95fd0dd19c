package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/transport/mqtt"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

var (
	mqttURL = "mqtt://localhost:1883/taskcore/"
)

func init() {
	if val := os.Getenv("TASKCORE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		glog.Fatalln(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = q.Connect(ctx)
	cancel()
	if err != nil {
		glog.Fatalln(err)
	}

	q.Sub("+/"+mqtt.TopicOut, func(topic string, payload []byte) {
		glog.Infof("%s: %q", topic, string(payload))
	})
	q.Sub("+/"+mqtt.TopicAlert, func(topic string, payload []byte) {
		device, a, err := mqtt.DecodeAlert(payload)
		if err != nil {
			glog.Warningf("%s: bad alert: %v", topic, err)
			return
		}
		glog.Warningf("%s [%s #%d %s]%s", device, a.At.Format(time.RFC3339), a.Count, a.EventID,
			strings.ReplaceAll(watchdog.FormatAlert(a), "\r\n", "\n  "))
	})
	<-(chan struct{})(nil)
}
