// Package ocpp exposes a single-station OCPP-J websocket endpoint and feeds
// accepted SetChargingProfile current limits into core.Context.
// OCPPCurrentLimit, grounded on ocpp_server/internal/ocpp's gorilla/websocket
// server shape (the nearest pack analogue to an OCPP charge-point endpoint;
// that repo's own github.com/lorenzodonini/ocpp-go dependency is otherwise
// unwired there too — see DESIGN.md).
package ocpp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// setChargingProfileRequest is the minimal OCPP 1.6 SetChargingProfile
// payload this endpoint understands: a single period's current limit.
type setChargingProfileRequest struct {
	ChargingProfile struct {
		ChargingSchedule struct {
			ChargingRateUnit       string  `json:"chargingRateUnit"`
			ChargingSchedulePeriod []struct {
				Limit float64 `json:"limit"`
			} `json:"chargingSchedulePeriod"`
		} `json:"chargingSchedule"`
	} `json:"csChargingProfiles"`
}

// Server serves charge-point websocket connections on /ws/<stationID> (each
// accepted connection gets its own read loop; their number is not limited)
// and relays current
// limits to whatever exclusive-access mechanism the caller supplies (the
// websocket read loop runs on its own goroutine; it never touches a
// core.Context directly, since that goroutine never coordinates with
// whatever else ticks it).
type Server struct {
	stationID string
	upgrader  websocket.Upgrader
	log       *logrus.Entry

	setCurrentLimit func(amps float64)
	setOCPPMode     func(active bool)
}

// NewServer builds a Server that invokes setCurrentLimit with the accepted
// current, in amps, whenever a SetChargingProfile request is accepted, and
// setOCPPMode(true)/(false) around the lifetime of a connected station. The
// caller is responsible for applying both to a core.Context under whatever
// lock also guards that Context's periodic ticking (see host.Runner.Do).
func NewServer(stationID string, setCurrentLimit func(amps float64), setOCPPMode func(active bool), log *logrus.Entry) *Server {
	return &Server{
		stationID:       stationID,
		setCurrentLimit: setCurrentLimit,
		setOCPPMode:     setOCPPMode,
		log:             log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ListenAndServe starts the websocket endpoint at addr under /ws/<stationID>.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/"+s.stationID, s.handleWebSocket)

	s.log.WithField("addr", addr).Info("starting OCPP websocket endpoint")
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.setOCPPMode(true)
	defer s.setOCPPMode(false)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.log.WithError(err).Info("station disconnected")
			return
		}

		resp := s.handleMessage(message)
		if resp != nil {
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				s.log.WithError(err).Error("write failed")
				return
			}
		}
	}
}

func (s *Server) handleMessage(raw []byte) []byte {
	var envelope []json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope) < 3 {
		s.log.WithError(err).Warn("malformed OCPP frame")
		return nil
	}

	var uniqueID string
	_ = json.Unmarshal(envelope[1], &uniqueID)

	var req setChargingProfileRequest
	if err := json.Unmarshal(envelope[2], &req); err != nil {
		return s.callResult(uniqueID, `{"status":"Rejected"}`)
	}

	periods := req.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod
	if len(periods) == 0 {
		return s.callResult(uniqueID, `{"status":"Rejected"}`)
	}

	s.SetCurrentLimit(periods[0].Limit)
	return s.callResult(uniqueID, `{"status":"Accepted"}`)
}

func (s *Server) callResult(uniqueID, payload string) []byte {
	return []byte(fmt.Sprintf(`[3,"%s",%s]`, uniqueID, payload))
}

// SetCurrentLimit forwards amps to the setCurrentLimit callback supplied to
// NewServer, the entry point core.CalcBalancedCurrent's OCPP clause reads
// on the next balancer pass.
func (s *Server) SetCurrentLimit(amps float64) {
	s.setCurrentLimit(amps)
	s.log.WithField("amps", amps).Info("OCPP current limit updated")
}
