package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
	"github.com/ispcompare/tariff-agent/internal/services"
)

// Services bundles the typed API wrappers exposed through the /api proxy.
type Services struct {
	Auth          *services.Auth
	Users         *services.Users
	Providers     *services.Providers
	Tariffs       *services.Tariffs
	Reviews       *services.Reviews
	SearchHistory *services.SearchHistory
}

// apiRoutes proxies the platform REST API so the instrumented UI talks
// only to the agent. The bearer credential never leaves the process.
func (s *Server) apiRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Post("/register", s.register)
		r.Post("/logout", s.logout)
		r.Get("/status", s.authStatus)
	})
	r.Route("/users", func(r chi.Router) {
		r.Get("/me", s.profile)
		r.Patch("/profile", s.updateProfile)
		r.Post("/change-password", s.changePassword)
	})
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", s.listProviders)
		r.Route("/{provider_id}", func(r chi.Router) {
			r.Get("/", s.getProvider)
			r.Get("/tariffs", s.providerTariffs)
			r.Get("/reviews", s.providerReviews)
			r.Post("/reviews", s.createReview)
		})
	})
	r.Route("/tariffs", func(r chi.Router) {
		r.Get("/", s.listTariffs)
		r.Get("/search", s.searchTariffs)
		r.Post("/comparison", s.compareTariffs)
		r.Get("/{tariff_id}", s.getTariff)
	})
	r.Route("/reviews/{review_id}", func(r chi.Router) {
		r.Get("/", s.getReview)
		r.Patch("/", s.updateReview)
		r.Delete("/", s.deleteReview)
	})
	r.Route("/search-history", func(r chi.Router) {
		r.Get("/", s.listSearchHistory)
		r.Delete("/", s.clearSearchHistory)
		r.Get("/latest", s.latestSearch)
		r.Delete("/{entry_id}", s.deleteSearchEntry)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req agent.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if _, err := s.svcs.Auth.Login(r.Context(), req.Username, req.Password); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req agent.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if _, err := s.svcs.Auth.Register(r.Context(), req); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"authenticated": true})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svcs.Auth.Logout(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) authStatus(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svcs.Auth.IsAuthenticated(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": ok})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svcs.Users.Profile(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var update agent.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	profile, err := s.svcs.Users.UpdateProfile(r.Context(), update)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req agent.PasswordChange
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	msg, err := s.svcs.Users.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	providers, err := s.svcs.Providers.List(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := s.svcs.Providers.Get(r.Context(), chi.URLParam(r, "provider_id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, provider)
}

func (s *Server) providerTariffs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	tariffs, err := s.svcs.Tariffs.ForProvider(r.Context(), chi.URLParam(r, "provider_id"), limit, offset)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tariffs)
}

func (s *Server) listTariffs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	tariffs, err := s.svcs.Tariffs.List(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tariffs)
}

func (s *Server) searchTariffs(w http.ResponseWriter, r *http.Request) {
	params, err := searchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tariffs, err := s.svcs.Tariffs.Search(r.Context(), params)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tariffs)
}

func (s *Server) getTariff(w http.ResponseWriter, r *http.Request) {
	tariff, err := s.svcs.Tariffs.Get(r.Context(), chi.URLParam(r, "tariff_id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tariff)
}

func (s *Server) compareTariffs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TariffIDs []string `json:"tariff_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.svcs.Tariffs.Compare(r.Context(), req.TariffIDs)
	if err != nil {
		if errors.Is(err, services.ErrComparisonSize) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var req agent.ReviewCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	review, err := s.svcs.Reviews.Create(r.Context(), chi.URLParam(r, "provider_id"), req)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) providerReviews(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	reviews, err := s.svcs.Reviews.ForProvider(r.Context(), chi.URLParam(r, "provider_id"), limit, offset)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.svcs.Reviews.Get(r.Context(), chi.URLParam(r, "review_id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) updateReview(w http.ResponseWriter, r *http.Request) {
	var req agent.ReviewUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	review, err := s.svcs.Reviews.Update(r.Context(), chi.URLParam(r, "review_id"), req)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := s.svcs.Reviews.Delete(r.Context(), chi.URLParam(r, "review_id")); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSearchHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svcs.SearchHistory.List(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) latestSearch(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svcs.SearchHistory.Latest(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteSearchEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.svcs.SearchHistory.Delete(r.Context(), chi.URLParam(r, "entry_id")); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearSearchHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.svcs.SearchHistory.Clear(r.Context()); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAPIError maps the client's error taxonomy onto proxy responses.
func writeAPIError(w http.ResponseWriter, err error) {
	var verr *apiclient.ValidationError
	if errors.As(err, &verr) {
		fields := make([]map[string]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, map[string]string{"field": f.Field, "message": f.Message})
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}
	var aerr *apiclient.AuthError
	if errors.As(err, &aerr) {
		writeError(w, http.StatusUnauthorized, aerr.Error())
		return
	}
	var herr *apiclient.HTTPError
	if errors.As(err, &herr) {
		writeError(w, herr.StatusCode, herr.Detail)
		return
	}
	var nerr *apiclient.NetworkError
	if errors.As(err, &nerr) {
		writeError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 100, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func searchParams(r *http.Request) (agent.TariffSearchParams, error) {
	var params agent.TariffSearchParams
	q := r.URL.Query()

	parseFloat := func(key string, dst **float64) error {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", key)
		}
		*dst = &f
		return nil
	}
	parseInt := func(key string, dst **int) error {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		*dst = &n
		return nil
	}
	parseBool := func(key string, dst **bool) error {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean", key)
		}
		*dst = &b
		return nil
	}

	for _, err := range []error{
		parseFloat("min_price", &params.MinPrice),
		parseFloat("max_price", &params.MaxPrice),
		parseInt("min_speed", &params.MinSpeed),
		parseInt("max_speed", &params.MaxSpeed),
		parseBool("has_tv", &params.HasTV),
		parseBool("has_phone", &params.HasPhone),
		parseInt("limit", &params.Limit),
		parseInt("offset", &params.Offset),
	} {
		if err != nil {
			return agent.TariffSearchParams{}, err
		}
	}
	return params, nil
}
