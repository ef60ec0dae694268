package observer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/api/resource"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
	"github.com/dimitrisb35/volume-broker/pkg/binder"
)

// Server serves the broker REST endpoint: read-only Observer queries plus the
// claim intake surface that forwards to the Binder
type Server struct {
	observer *Observer
	binder   *binder.Binder
	address  string

	log *logrus.Entry
}

// NewServer is a constructor for Server
func NewServer(observer *Observer, b *binder.Binder, address string, logger *logrus.Logger) *Server {
	return &Server{
		observer: observer,
		binder:   b,
		address:  address,
		log:      logger.WithField("component", "restServer"),
	}
}

// Router builds the route table
func (s *Server) Router(registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/classes", s.GetClasses).Methods(http.MethodGet)
	router.HandleFunc("/claims", s.GetClaims).Methods(http.MethodGet)
	router.HandleFunc("/claims/{id}", s.GetClaim).Methods(http.MethodGet)
	router.HandleFunc("/claims/{id}/events", s.GetEvents).Methods(http.MethodGet)
	router.HandleFunc("/volumes", s.GetVolumes).Methods(http.MethodGet)
	router.HandleFunc("/volumes/{id}", s.GetVolume).Methods(http.MethodGet)
	router.HandleFunc("/volumes/{id}/events", s.GetEvents).Methods(http.MethodGet)

	router.HandleFunc("/claims", s.CreateClaim).Methods(http.MethodPost)
	router.HandleFunc("/claims/{id}", s.DeleteClaim).Methods(http.MethodDelete)
	router.HandleFunc("/claims/{id}/placement", s.SetPlacement).Methods(http.MethodPut)
	router.HandleFunc("/claims/{id}/resize", s.ResizeClaim).Methods(http.MethodPut)
	router.HandleFunc("/workloads/{id}", s.TeardownWorkload).Methods(http.MethodDelete)

	if registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return router
}

// ListenAndServe runs the HTTP listener until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, registry *prometheus.Registry) error {
	srv := &http.Server{Addr: s.address, Handler: s.Router(registry)}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	s.log.WithField("method", "ListenAndServe").Infof("Serving REST on %s", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetClasses returns all registered storage classes
func (s *Server) GetClasses(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, "GetClasses", s.observer.Classes())
}

// GetClaims returns claims, filtered by ?state=
func (s *Server) GetClaims(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "GetClaims", s.observer.Claims(r.URL.Query().Get("state")))
}

// GetClaim returns a single claim by ID
func (s *Server) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := s.observer.Claim(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, "GetClaim", claim)
}

// GetVolumes returns volumes, filtered by ?state=
func (s *Server) GetVolumes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "GetVolumes", s.observer.Volumes(r.URL.Query().Get("state")))
}

// GetVolume returns a single volume by ID
func (s *Server) GetVolume(w http.ResponseWriter, r *http.Request) {
	volume, err := s.observer.Volume(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, "GetVolume", volume)
}

// GetEvents returns the event history of a claim or volume
func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "GetEvents", s.observer.Events(mux.Vars(r)["id"]))
}

// ClaimRequest is the intake payload. Capacity takes human-readable
// quantities like "10Gi".
type ClaimRequest struct {
	ID            string   `json:"id,omitempty"`
	Capacity      string   `json:"capacity"`
	AccessModes   []string `json:"accessModes"`
	StorageClass  string   `json:"storageClass,omitempty"`
	PlacementHint string   `json:"placementHint,omitempty"`
}

// CreateClaim accepts a claim creation request
func (s *Server) CreateClaim(w http.ResponseWriter, r *http.Request) {
	ll := s.log.WithField("method", "CreateClaim")

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	size, err := parseCapacity(req.Capacity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	claim, err := s.binder.CreateClaim(r.Context(), &apiV1.Claim{
		ID:            req.ID,
		Size:          size,
		AccessModes:   req.AccessModes,
		StorageClass:  req.StorageClass,
		PlacementHint: req.PlacementHint,
	})
	if err != nil {
		ll.Errorf("Claim rejected: %v", err)
		status := http.StatusBadRequest
		if errors.Is(err, baseerr.ErrorAlreadyExists) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(claim); err != nil {
		ll.Errorf("Failed to encode response: %v", err)
	}
}

// DeleteClaim releases a claim
func (s *Server) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	if err := s.binder.ReleaseClaim(r.Context(), mux.Vars(r)["id"]); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, baseerr.ErrorNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPlacement records a consumer placement hint on a claim
func (s *Server) SetPlacement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hint string `json:"hint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.binder.SetPlacementHint(r.Context(), mux.Vars(r)["id"], req.Hint); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, baseerr.ErrorNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResizeClaim grows the volume bound to a claim
func (s *Server) ResizeClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Capacity string `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	size, err := parseCapacity(req.Capacity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.binder.ExpandClaim(r.Context(), mux.Vars(r)["id"], size); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, baseerr.ErrorNotFound):
			status = http.StatusNotFound
		case errors.Is(err, baseerr.ErrorResizeNotSupported):
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TeardownWorkload destroys every ephemeral volume owned by a workload context
func (s *Server) TeardownWorkload(w http.ResponseWriter, r *http.Request) {
	volumeIDs, err := s.binder.TeardownWorkload(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, "TeardownWorkload", map[string][]string{"destroyed": volumeIDs})
}

func (s *Server) writeJSON(w http.ResponseWriter, method string, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithField("method", method).Errorf("Failed to encode response: %v", err)
	}
}

func parseCapacity(capacity string) (int64, error) {
	quantity, err := resource.ParseQuantity(capacity)
	if err != nil {
		return 0, err
	}
	return quantity.Value(), nil
}
