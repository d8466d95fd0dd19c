package mqtt

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/google/uuid"

	"github.com/robotalks/taskcore/pkg/watchdog"
)

// EncodeAlert encodes a as a protobuf Struct.
func EncodeAlert(device string, a watchdog.Alert) ([]byte, error) {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"device":     stringValue(device),
		"event_id":   stringValue(a.EventID.String()),
		"task":       stringValue(a.Name),
		"id":         numberValue(float64(a.ID)),
		"elapsed_ms": numberValue(float64(a.Elapsed.Milliseconds())),
		"timeout_ms": numberValue(float64(a.Timeout.Milliseconds())),
		"count":      numberValue(float64(a.Count)),
		"at":         stringValue(a.At.UTC().Format(time.RFC3339Nano)),
	}}
	return proto.Marshal(msg)
}

// DecodeAlert decodes a payload produced by EncodeAlert.
func DecodeAlert(data []byte) (device string, a watchdog.Alert, err error) {
	var msg structpb.Struct
	if err = proto.Unmarshal(data, &msg); err != nil {
		return
	}
	f := msg.GetFields()
	device = f["device"].GetStringValue()
	a.Name = f["task"].GetStringValue()
	a.ID = int(f["id"].GetNumberValue())
	a.Handle = watchdog.Handle(a.ID)
	a.Elapsed = time.Duration(f["elapsed_ms"].GetNumberValue()) * time.Millisecond
	a.Timeout = time.Duration(f["timeout_ms"].GetNumberValue()) * time.Millisecond
	a.Count = uint32(f["count"].GetNumberValue())
	if a.EventID, err = uuid.Parse(f["event_id"].GetStringValue()); err != nil {
		err = fmt.Errorf("event_id: %w", err)
		return
	}
	if a.At, err = time.Parse(time.RFC3339Nano, f["at"].GetStringValue()); err != nil {
		err = fmt.Errorf("at: %w", err)
	}
	return
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numberValue(n float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
}

// AlertSink publishes watchdog alerts to <prefix><device>/alert.
type AlertSink struct {
	Publisher TopicPublisher
	Device    string
}

// NewAlertSink creates an AlertSink for device.
func NewAlertSink(pub TopicPublisher, device string) *AlertSink {
	return &AlertSink{Publisher: pub, Device: device}
}

// HandleAlert is a watchdog.AlertHandler. It does not wait for the broker.
func (s *AlertSink) HandleAlert(a watchdog.Alert) {
	data, err := EncodeAlert(s.Device, a)
	if err != nil {
		glog.Errorf("mqtt: encode alert: %v", err)
		return
	}
	s.Publisher.Pub(DeviceTopic(s.Device, TopicAlert), data)
}
