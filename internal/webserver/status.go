package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dj-oyu/carcam/internal/camera"
	"github.com/dj-oyu/carcam/pkg/types"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// statusSnapshot serializes the sensor registers followed by the position.
type statusSnapshot struct {
	camera.Status
	Latitude  types.Coordinate `json:"latitude"`
	Longitude types.Coordinate `json:"longitude"`
}

func (s *Server) snapshot() statusSnapshot {
	pos := s.state.Position()
	return statusSnapshot{
		Status:    s.cam.Sensor().Status(),
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Status handler called (%s)", r.RemoteAddr)

	data, err := json.Marshal(s.snapshot())
	if err != nil {
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		return
	}

	if wantsProtobuf(r) {
		pb, err := statusProto(data)
		if err != nil {
			s.log.Error("Protobuf status: %v", err)
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(pb)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// statusProto re-encodes the JSON snapshot as a google.protobuf.Struct so
// both encodings carry identical values.
func statusProto(data []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return proto.Marshal(st)
}
