package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/learnsmart/backend/internal/progression"
)

// Server exposes the progression engine to the mobile client: a WebSocket
// feed of progression events plus a thin JSON API for the inbound triggers
// (quiz completed, app opened, answer marked helpful, cosmetic purchase).
type Server struct {
	engine         *progression.Engine
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(engine *progression.Engine, broadcaster *Broadcaster, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		engine:         engine,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/api/xp", s.handleXP)
	mux.HandleFunc("/api/ranks", s.handleRanks)
	mux.HandleFunc("/api/ranks/consume", s.handleConsumeRankUp)
	mux.HandleFunc("/api/badges", s.handleBadges)
	mux.HandleFunc("/api/cosmetics", s.handleCosmetics)
	mux.HandleFunc("/api/cosmetics/", s.handleCosmeticRoutes)
	mux.HandleFunc("/api/events/quiz", s.handleQuizEvent)
	mux.HandleFunc("/api/events/activity", s.handleActivityEvent)
	mux.HandleFunc("/api/events/helpful", s.handleHelpfulEvent)
	mux.HandleFunc("/api/events/lesson", s.handleLessonEvent)
	mux.HandleFunc("/api/streak/protection", s.handleStreakProtection)
	mux.HandleFunc("/api/reset", s.handleReset)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, s.engine.Snapshot())
}

func (s *Server) handleXP(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"totalXP": s.engine.XP.TotalXP(),
		"dailyXP": s.engine.XP.DailyXP(),
		"entries": s.engine.XP.Entries(),
	})
}

func (s *Server) handleRanks(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"ranks":           progression.Ranks(),
		"current":         s.engine.Rank.CurrentRank(),
		"progressPercent": s.engine.Rank.Progress(),
		"history":         s.engine.Rank.History(),
	})
}

// handleConsumeRankUp hands the pending rank-up event to exactly one reader
// so the celebratory modal shows once. 204 when nothing is pending.
func (s *Server) handleConsumeRankUp(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	event, ok := s.engine.Rank.ConsumeLastRankUp()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, event)
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"catalog":  s.engine.Badges.Catalog(),
		"unlocked": s.engine.Badges.Unlocked(),
	})
}

func (s *Server) handleCosmetics(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"catalog":    s.engine.Avatar.Catalog(),
		"unlocked":   s.engine.Avatar.Unlocked(),
		"appearance": s.engine.Avatar.Appearance(),
	})
}

// handleCosmeticRoutes parses /api/cosmetics/{id}/{unlock|equip|remove}.
func (s *Server) handleCosmeticRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/cosmetics/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "invalid cosmetic id", http.StatusBadRequest)
		return
	}

	var ok bool
	switch parts[1] {
	case "unlock":
		ok = s.engine.Avatar.UnlockCosmetic(id)
	case "equip":
		ok = s.engine.Avatar.EquipCosmetic(id)
	case "remove":
		ok = s.engine.Avatar.RemoveCosmetic(id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{
		"ok":          ok,
		"coinBalance": s.engine.Coins.Balance(),
		"appearance":  s.engine.Avatar.Appearance(),
	})
}

type quizEventRequest struct {
	Correct     int     `json:"correct"`
	Total       int     `json:"total"`
	Difficulty  float64 `json:"difficulty"`  // multiplier, 1.0 = base
	StreakBonus int     `json:"streakBonus"` // consecutive correct answers within the quiz
}

// handleQuizEvent converts a finished quiz into an XP batch and badge
// progress. A perfect score additionally feeds the perfectionist counter.
func (s *Server) handleQuizEvent(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req quizEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Correct < 0 || req.Total < 0 || req.Correct > req.Total {
		http.Error(w, "invalid quiz result", http.StatusBadRequest)
		return
	}

	base := float64(progression.XPPerCorrectAnswer * req.Correct)
	items := []progression.XPItem{{
		Amount:      base,
		Type:        progression.XPQuizCorrect,
		Description: fmt.Sprintf("Quiz: %d/%d correct", req.Correct, req.Total),
	}}
	if req.Difficulty > 1 {
		items = append(items, progression.XPItem{
			Amount:      base * (req.Difficulty - 1),
			Type:        progression.XPDifficultyMultiplier,
			Description: fmt.Sprintf("Difficulty bonus x%.1f", req.Difficulty),
		})
	}
	if req.StreakBonus > 0 {
		items = append(items, progression.XPItem{
			Amount:      float64(progression.XPPerQuizStreakStep * req.StreakBonus),
			Type:        progression.XPQuizStreak,
			Description: fmt.Sprintf("Answer streak x%d", req.StreakBonus),
		})
	}
	s.engine.XP.AddXPBatch(items)

	unlocked := s.engine.Badges.IncrementProgress(progression.CriterionQuizzesCompleted, 1)
	if req.Total > 0 && req.Correct == req.Total {
		unlocked = append(unlocked, s.engine.Badges.IncrementProgress(progression.CriterionPerfectQuizzes, 1)...)
	}

	writeJSON(w, map[string]any{
		"totalXP":        s.engine.XP.TotalXP(),
		"dailyXP":        s.engine.XP.DailyXP(),
		"rank":           s.engine.Rank.CurrentRank(),
		"badgesUnlocked": unlocked,
	})
}

// handleActivityEvent records "app opened today" and advances the streak.
func (s *Server) handleActivityEvent(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Streak.UpdateStreak()
	writeJSON(w, s.engine.Streak.Status())
}

// handleHelpfulEvent records a forum answer marked helpful.
func (s *Server) handleHelpfulEvent(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.XP.AddXP(progression.XPHelpfulAnswer, progression.XPForumHelpful, "Answer marked helpful")
	s.engine.Coins.AddCoins(progression.CoinsHelpfulAnswer, progression.CoinForumHelpful, "Answer marked helpful")
	unlocked := s.engine.Badges.IncrementProgress(progression.CriterionHelpfulAnswers, 1)
	writeJSON(w, map[string]any{
		"badgesUnlocked": unlocked,
		"coinBalance":    s.engine.Coins.Balance(),
	})
}

type lessonEventRequest struct {
	Concepts []string `json:"concepts"`
}

// handleLessonEvent records a completed lesson and its learned concepts.
func (s *Server) handleLessonEvent(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req lessonEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	unlocked := s.engine.Badges.IncrementProgress(progression.CriterionLessonsCompleted, 1)
	concepts := s.engine.Badges.AddLearnedConcepts(req.Concepts)
	writeJSON(w, map[string]any{
		"badgesUnlocked":  unlocked,
		"conceptsLearned": concepts,
	})
}

func (s *Server) handleStreakProtection(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ok := s.engine.Streak.ActivateStreakProtection()
	writeJSON(w, map[string]any{
		"ok":          ok,
		"coinBalance": s.engine.Coins.Balance(),
		"streak":      s.engine.Streak.Status(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.ResetAll()
	writeJSON(w, s.engine.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-LearnSmart-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
