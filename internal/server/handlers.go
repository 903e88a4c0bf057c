package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"doodlesync/internal/blobs"
	"doodlesync/internal/replica"
	"doodlesync/internal/transport"
	"doodlesync/internal/wshub"
)

const maxBlobSize = 8 << 20

type Server struct {
	Replica  *replica.Replica
	Hub      *wshub.Hub // nil when the relay runs elsewhere
	Gatherer prometheus.Gatherer
	Log      *logrus.Entry
}

// Handler builds the HTTP surface: operations are POSTs with JSON bodies,
// projections are GETs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /room", s.handleCreateRoom)
	mux.HandleFunc("POST /room/join", s.handleJoinRoom)
	mux.HandleFunc("POST /room/leave", s.handleLeaveRoom)
	mux.HandleFunc("POST /room/start", s.handleStartGame)
	mux.HandleFunc("POST /room/drawer", s.handleChooseDrawer)
	mux.HandleFunc("POST /room/word", s.handleChooseWord)
	mux.HandleFunc("POST /room/guess", s.handleGuessWord)
	mux.HandleFunc("POST /room/end", s.handleEndMatch)
	mux.HandleFunc("GET /room", s.handleRoom)
	mux.HandleFunc("GET /room/players", s.handlePlayers)
	mux.HandleFunc("GET /room/drawer", s.handleCurrentDrawer)
	mux.HandleFunc("GET /room/word", s.handleCurrentWord)
	mux.HandleFunc("GET /room/chat", s.handleChat)
	mux.HandleFunc("GET /archive", s.handleArchive)

	mux.HandleFunc("POST /matchmaking/join", s.handleJoinMatchmaking)
	mux.HandleFunc("POST /matchmaking/leave", s.handleLeaveMatchmaking)
	mux.HandleFunc("GET /matchmaking", s.handleMatchmakingStatus)
	mux.HandleFunc("GET /matchmaking/queue", s.handleMatchmakingQueue)
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)

	mux.HandleFunc("POST /friends/request", s.handleRequestFriend)
	mux.HandleFunc("POST /friends/accept", s.handleAcceptFriend)
	mux.HandleFunc("POST /friends/decline", s.handleDeclineFriend)
	mux.HandleFunc("GET /friends", s.handleFriends)
	mux.HandleFunc("POST /invitations", s.handleInviteFriend)
	mux.HandleFunc("POST /invitations/accept", s.handleAcceptInvite)
	mux.HandleFunc("POST /invitations/decline", s.handleDeclineInvite)
	mux.HandleFunc("GET /invitations", s.handleInvitations)

	mux.HandleFunc("POST /blobs", s.handleSaveBlob)
	mux.HandleFunc("GET /blobs/{hash}", s.handleReadBlob)

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.Hub != nil {
		mux.Handle("/relay", s.Hub)
	}
	return mux
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, replica.ErrInvalidArgument),
		errors.Is(err, transport.ErrMalformedAddress),
		errors.Is(err, blobs.ErrMalformedHash):
		return http.StatusBadRequest
	case errors.Is(err, replica.ErrNotHost),
		errors.Is(err, replica.ErrNotDrawer),
		errors.Is(err, replica.ErrIsDrawer),
		errors.Is(err, replica.ErrNotFriend):
		return http.StatusForbidden
	case errors.Is(err, replica.ErrNoRoom),
		errors.Is(err, replica.ErrNoSuchRequest),
		errors.Is(err, replica.ErrNoSuchInvitation),
		errors.Is(err, replica.ErrNotQueued),
		errors.Is(err, blobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, replica.ErrAlreadyInRoom),
		errors.Is(err, replica.ErrWrongState),
		errors.Is(err, replica.ErrNoDrawer):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.WithError(err).Warn("writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Log.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decode reads a JSON body into v. An empty body leaves v zero.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errors.Join(replica.ErrInvalidArgument, err)
}

// operation decodes the body into req, runs fn and writes a 204 or the error.
func operation[T any](s *Server, fn func(r *http.Request, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if err := fn(r, req); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type playerRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		playerRequest
		Leaderboard string `json:"leaderboard"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.Replica.CreateRoom(r.Context(), req.Name, req.Avatar, req.Leaderboard)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"room_id": id})
}

type joinRequest struct {
	Host string `json:"host"`
	playerRequest
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req joinRequest) error {
		return s.Replica.JoinRoom(r.Context(), req.Host, req.Name, req.Avatar)
	})(w, r)
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req struct {
		BlobRefs []string `json:"blob_refs"`
	}) error {
		return s.Replica.LeaveRoom(r.Context(), req.BlobRefs)
	})(w, r)
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req struct {
		Rounds          uint32 `json:"rounds"`
		SecondsPerRound uint32 `json:"seconds_per_round"`
	}) error {
		return s.Replica.StartGame(r.Context(), req.Rounds, req.SecondsPerRound)
	})(w, r)
}

func (s *Server) handleChooseDrawer(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, _ struct{}) error {
		return s.Replica.ChooseDrawer(r.Context())
	})(w, r)
}

func (s *Server) handleChooseWord(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req struct {
		Word string `json:"word"`
	}) error {
		return s.Replica.ChooseWord(r.Context(), req.Word)
	})(w, r)
}

func (s *Server) handleGuessWord(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req struct {
		Text string `json:"text"`
	}) error {
		return s.Replica.GuessWord(r.Context(), req.Text)
	})(w, r)
}

func (s *Server) handleEndMatch(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, _ struct{}) error {
		return s.Replica.EndMatch(r.Context())
	})(w, r)
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	room := s.Replica.Room()
	if room == nil {
		s.writeError(w, replica.ErrNoRoom)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	room := s.Replica.Room()
	if room == nil {
		s.writeError(w, replica.ErrNoRoom)
		return
	}
	s.writeJSON(w, http.StatusOK, room.Players)
}

func (s *Server) handleCurrentDrawer(w http.ResponseWriter, r *http.Request) {
	room := s.Replica.Room()
	if room == nil {
		s.writeError(w, replica.ErrNoRoom)
		return
	}
	drawer := room.CurrentDrawer()
	if drawer == nil {
		s.writeError(w, replica.ErrNoDrawer)
		return
	}
	s.writeJSON(w, http.StatusOK, drawer)
}

func (s *Server) handleCurrentWord(w http.ResponseWriter, r *http.Request) {
	word, ok := s.Replica.CurrentWord()
	if !ok {
		s.writeError(w, replica.ErrNotDrawer)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"word": word})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	room := s.Replica.Room()
	if room == nil {
		s.writeError(w, replica.ErrNoRoom)
		return
	}
	s.writeJSON(w, http.StatusOK, room.ChatMessages)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Replica.ArchivedRooms())
}

func (s *Server) handleJoinMatchmaking(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req struct {
		Coordinator string `json:"coordinator"`
		Leaderboard string `json:"leaderboard"`
		playerRequest
	}) error {
		return s.Replica.JoinMatchmaking(r.Context(), req.Coordinator, req.Leaderboard, req.Name, req.Avatar)
	})(w, r)
}

func (s *Server) handleLeaveMatchmaking(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, _ struct{}) error {
		return s.Replica.LeaveMatchmaking(r.Context())
	})(w, r)
}

func (s *Server) handleMatchmakingStatus(w http.ResponseWriter, r *http.Request) {
	size, note := s.Replica.MatchmakingStatus()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"queue_size":        size,
		"last_notification": note,
	})
}

func (s *Server) handleMatchmakingQueue(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Replica.MatchmakingQueue())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Replica.Leaderboard().Entries)
}

type peerRequest struct {
	ReplicaID string `json:"replica_id"`
}

func (s *Server) handleRequestFriend(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req peerRequest) error {
		return s.Replica.RequestFriend(r.Context(), req.ReplicaID)
	})(w, r)
}

func (s *Server) handleAcceptFriend(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req peerRequest) error {
		return s.Replica.AcceptFriend(r.Context(), req.ReplicaID)
	})(w, r)
}

func (s *Server) handleDeclineFriend(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req peerRequest) error {
		return s.Replica.DeclineFriend(r.Context(), req.ReplicaID)
	})(w, r)
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	book := s.Replica.Social()
	s.writeJSON(w, http.StatusOK, map[string][]string{
		"friends":                  book.Friends,
		"friend_requests_received": book.RequestsReceived,
		"friend_requests_sent":     book.RequestsSent,
	})
}

func (s *Server) handleInviteFriend(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req peerRequest) error {
		return s.Replica.InviteFriend(r.Context(), req.ReplicaID)
	})(w, r)
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req joinRequest) error {
		return s.Replica.AcceptInvite(r.Context(), req.Host, req.Name, req.Avatar)
	})(w, r)
}

func (s *Server) handleDeclineInvite(w http.ResponseWriter, r *http.Request) {
	operation(s, func(r *http.Request, req joinRequest) error {
		return s.Replica.DeclineInvite(r.Context(), req.Host)
	})(w, r)
}

func (s *Server) handleInvitations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Replica.Social().Invitations)
}

func (s *Server) handleSaveBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBlobSize))
	if err != nil {
		s.writeError(w, errors.Join(replica.ErrInvalidArgument, err))
		return
	}
	hash, err := s.Replica.SaveBlob(r.Context(), data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"hash": hash})
}

func (s *Server) handleReadBlob(w http.ResponseWriter, r *http.Request) {
	data, err := s.Replica.ReadBlob(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(data); err != nil {
		s.Log.WithError(err).Warn("writing blob")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":     "ok",
		"replica_id": s.Replica.ID(),
	}
	if s.Hub != nil {
		resp["relay_peers"] = s.Hub.Peers()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
