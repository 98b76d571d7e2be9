// Package admin is the operational HTTP API of a running daemon:
// a health check and a listing of the sessions its services manage.
package admin

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"

	"github.com/dmksnnk/moor"
	"github.com/go-playground/form/v4"
)

// Service is the view of a session service the API reports on.
type Service interface {
	ManagedSessions() map[uint64]*moor.Session
	Stats() moor.Stats
}

// API serves operational endpoints over a set of named services.
type API struct {
	services map[string]Service
	decoder  *form.Decoder
}

// NewAPI creates a new API over the given services, keyed by the
// name they are reported under.
func NewAPI(services map[string]Service) *API {
	return &API{
		services: services,
		decoder:  newFormDecoder(),
	}
}

// SessionsRequest filters the sessions listing.
type SessionsRequest struct {
	// Service limits the listing to a single service.
	Service string `form:"service"`
	// Remote keeps only sessions from the given remote IP.
	Remote netip.Addr `form:"remote"`
	// Limit caps the number of sessions reported per service.
	// Zero means no limit.
	Limit int `form:"limit"`
}

// SessionInfo is a single managed session in the listing.
type SessionInfo struct {
	ID         uint64 `json:"id"`
	LocalAddr  string `json:"local_addr"`
	RemoteAddr string `json:"remote_addr"`
}

// ServiceStatus reports one service's counters and its managed sessions.
type ServiceStatus struct {
	Active   int           `json:"active"`
	Opened   uint64        `json:"opened"`
	Closed   uint64        `json:"closed"`
	Sessions []SessionInfo `json:"sessions"`
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) Sessions(w http.ResponseWriter, r *http.Request) {
	var req SessionsRequest
	if err := a.decoder.Decode(&req, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	services := a.services
	if req.Service != "" {
		svc, ok := a.services[req.Service]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown service: %s", req.Service), http.StatusNotFound)
			return
		}

		services = map[string]Service{req.Service: svc}
	}

	resp := make(map[string]ServiceStatus, len(services))
	for name, svc := range services {
		resp[name] = newServiceStatus(svc, req)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func newServiceStatus(svc Service, req SessionsRequest) ServiceStatus {
	stats := svc.Stats()
	status := ServiceStatus{
		Active: stats.Active,
		Opened: stats.Opened,
		Closed: stats.Closed,
	}

	sessions := svc.ManagedSessions()
	ids := make([]uint64, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids) // stable listing order

	for _, id := range ids {
		sess := sessions[id]
		if req.Remote.IsValid() && !fromRemoteIP(sess, req.Remote) {
			continue
		}

		status.Sessions = append(status.Sessions, SessionInfo{
			ID:         id,
			LocalAddr:  sess.LocalAddr().String(),
			RemoteAddr: sess.RemoteAddr().String(),
		})
		if req.Limit > 0 && len(status.Sessions) == req.Limit {
			break
		}
	}

	return status
}

func fromRemoteIP(sess *moor.Session, ip netip.Addr) bool {
	host, _, err := net.SplitHostPort(sess.RemoteAddr().String())
	if err != nil {
		return false
	}

	remote, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	return remote.Unmap() == ip.Unmap()
}

// NewRouter returns an HTTP multiplexer with all API routes registered.
func NewRouter(api *API) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /-/health", api.Health)
	mux.HandleFunc("GET /sessions", api.Sessions)

	return mux
}
