package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/broadcast"
	"github.com/robotalks/taskcore/pkg/console"
	"github.com/robotalks/taskcore/pkg/framework"
	"github.com/robotalks/taskcore/pkg/system"
	"github.com/robotalks/taskcore/pkg/transport/mqtt"
	"github.com/robotalks/taskcore/pkg/transport/serial"
	"github.com/robotalks/taskcore/pkg/transport/stream"
	"github.com/robotalks/taskcore/pkg/transport/websocket"
)

var configFile string

func init() {
	system.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file")
}

// openConsole selects the byte input and the exclusive output resource.
func openConsole(conf *system.Config) (io.Reader, broadcast.Transmitter, string) {
	switch {
	case conf.Serial.Device != "":
		port, err := serial.Open(serial.Config{Device: conf.Serial.Device, BaudRate: conf.Serial.BaudRate})
		if err != nil {
			glog.Fatalf("open serial %s: %v", conf.Serial.Device, err)
		}
		return port, port, port.Name()
	case conf.WebsocketURL != "":
		conn, err := websocket.Dial(conf.WebsocketURL, "")
		if err != nil {
			glog.Fatalf("dial %s: %v", conf.WebsocketURL, err)
		}
		return conn, conn, conn.Name()
	}
	return os.Stdin, stream.New(os.Stdout), "stdio"
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := system.NewConfig()
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			glog.Fatalf("config: %v", err)
		}
	}

	in, tx, label := openConsole(conf)
	deps := system.Deps{Transmitter: tx}
	if conf.MQTTBrokerURL != "" {
		q, err := mqtt.NewQueueFromURL(conf.MQTTBrokerURL)
		if err != nil {
			glog.Fatalf("mqtt: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = q.Connect(ctx)
		cancel()
		if err != nil {
			glog.Fatalf("mqtt connect %s: %v", conf.MQTTBrokerURL, err)
		}
		defer q.Close()
		device := conf.Device()
		deps.Transmitter = broadcast.Tee(tx, mqtt.NewTransmitter(q, device))
		deps.AlertHandlers = append(deps.AlertHandlers, mqtt.NewAlertSink(q, device).HandleAlert)
		glog.Infof("mirroring output of %s to %s", device, conf.MQTTBrokerURL)
	}

	sys := conf.MustNew(deps)
	runner := framework.NewRunner().HandleSignals().Add(sys)
	runner.Go(&console.Source{Reader: in, Writer: sys.IRQ(), Label: label})
	if err := runner.Wait(); err != nil {
		glog.Fatalf("stopped: %v", err)
	}
}
