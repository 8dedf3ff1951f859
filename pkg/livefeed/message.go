package livefeed

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jkbrsn/jsonrpc"

	"github.com/jkbrsn/httpscope"
)

// Methods pushed to clients as JSON-RPC notifications.
const (
	MethodMeasure   = "httpscope_measure"
	MethodException = "httpscope_exception"
)

// MethodRecent is the request method returning the most recent measurement frames.
const MethodRecent = "httpscope_recent"

// MeasureFrame is the wire form of a measurement.
type MeasureFrame struct {
	Key        string            `json:"key"`
	Label      string            `json:"label"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	DurationMs float64           `json:"duration_ms"`
	Status     int               `json:"status,omitempty"`
	Params     map[string]string `json:"params"`
	Error      string            `json:"error,omitempty"`
}

// ExceptionFrame is the wire form of an exception.
type ExceptionFrame struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func measureFrame(m httpscope.Measurement) MeasureFrame {
	f := MeasureFrame{
		Key:        string(m.Key),
		Label:      m.Label,
		Start:      m.Start,
		End:        m.End,
		DurationMs: float64(m.Duration()) / float64(time.Millisecond),
		Status:     m.StatusCode(),
		Params:     m.Parameters,
	}
	if m.Err != nil {
		f.Error = m.Err.Error()
	}
	return f
}

// objectParams converts a frame into the object form jsonrpc.Request accepts as params.
func objectParams(v any) (map[string]any, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := sonic.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func encodeNotification(method string, frame any) ([]byte, error) {
	params, err := objectParams(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", method, err)
	}
	data, err := jsonrpc.NewNotification(method, params).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding %s notification: %w", method, err)
	}
	return data, nil
}

func encodeResult(id, result any) ([]byte, error) {
	resp, err := jsonrpc.NewResponse(id, result)
	if err != nil {
		return nil, err
	}
	return resp.MarshalJSON()
}

func encodeError(id any, code int, message string) ([]byte, error) {
	return jsonrpc.NewErrorResponse(id, &jsonrpc.Error{Code: code, Message: message}).MarshalJSON()
}
