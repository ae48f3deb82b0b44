// Package ws is the player-facing websocket transport: HELLO/WELCOME
// handshake, catalog delivery, and ACT routing into the session loop.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ohisim.ai/internal/persistence/snapshot"
	"ohisim.ai/internal/protocol"
	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/game"
	"ohisim.ai/internal/sim/sessions"
	"ohisim.ai/internal/sim/tuning"
)

const clientQueue = 32

type Server struct {
	mgr  *sessions.Manager
	tune tuning.Tuning
	cats *catalogs.Catalogs
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(mgr *sessions.Manager, t tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) *Server {
	return &Server{
		mgr:  mgr,
		tune: t,
		cats: cats,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		created, out, ok := s.handshake(conn)
		if !ok {
			return
		}
		sess := created.Session

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		if err := sess.Attach(ctx, created.PlayerID, out); err != nil {
			return
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				continue
			}
			act.Instants = s.stripLoads(ctx, created, act.Instants, out)
			if len(act.Instants) == 0 {
				continue
			}
			select {
			case sess.Inbox() <- game.ActionEnvelope{PlayerID: created.PlayerID, Act: act}:
			default:
				s.ackLocal(out, protocol.Instant{ID: firstID(act.Instants)}, false, protocol.ErrSessionBusy, "inbox full")
			}
		}

		sess.Leave() <- created.PlayerID
	}
}

func firstID(insts []protocol.Instant) string {
	if len(insts) == 0 {
		return ""
	}
	return insts[0].ID
}

// stripLoads handles LOAD instants at the transport, where disk access
// belongs. Everything else passes through to the session loop.
func (s *Server) stripLoads(ctx context.Context, created sessions.Created, insts []protocol.Instant, out chan []byte) []protocol.Instant {
	kept := insts[:0]
	for _, inst := range insts {
		if inst.Type != protocol.InstLoad {
			kept = append(kept, inst)
			continue
		}
		if err := s.loadSave(ctx, created, inst.Path); err != nil {
			s.ackLocal(out, inst, false, protocol.ErrBadRequest, err.Error())
			continue
		}
		s.ackLocal(out, inst, true, "", "")
	}
	return kept
}

// loadSave restores a snapshot from the session's own saves directory. Only
// the base name of the requested path is honored.
func (s *Server) loadSave(ctx context.Context, created sessions.Created, path string) error {
	dir := filepath.Join(s.mgr.SessionDir(created.SessionID), "saves")
	name := filepath.Base(strings.TrimSpace(path))
	if name == "." || name == string(filepath.Separator) || name == "" {
		latest, err := latestSave(dir)
		if err != nil {
			return err
		}
		name = latest
	}
	snap, err := snapshot.ReadSnapshot(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	return created.Session.LoadState(ctx, snap.State)
}

func latestSave(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", os.ErrNotExist
	}
	sort.Strings(names)
	return names[len(names)-1], nil
}

func (s *Server) ackLocal(out chan []byte, inst protocol.Instant, accepted bool, code, msg string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          inst.ID,
		Accepted:        accepted,
		Code:            code,
		Message:         msg,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessions.Created, chan []byte, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sessions.Created{}, nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return sessions.Created{}, nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return sessions.Created{}, nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return sessions.Created{}, nil, false
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "minister"
	}

	var created sessions.Created
	if token := strings.TrimSpace(hello.ResumeToken); token != "" {
		created, err = s.mgr.Resume(token)
	} else {
		created, err = s.mgr.Create(sessions.CreateParams{
			PlayerName: hello.PlayerName,
			CountryISO: strings.ToUpper(strings.TrimSpace(hello.CountryISO)),
			ScenarioID: hello.ScenarioID,
		})
	}
	if err != nil {
		closePolicy(conn, err.Error())
		return sessions.Created{}, nil, false
	}

	out := make(chan []byte, clientQueue)
	if err := writeJSON(conn, s.welcome(created)); err != nil {
		return sessions.Created{}, nil, false
	}
	for _, c := range s.catalogParts() {
		if err := writeJSON(conn, c); err != nil {
			return sessions.Created{}, nil, false
		}
	}
	return created, out, true
}

func (s *Server) welcome(created sessions.Created) protocol.WelcomeMsg {
	country := ""
	if mv := created.Session.Metrics(); mv.CountryISO != "" {
		country = mv.CountryISO
	}
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       created.SessionID,
		PlayerID:        created.PlayerID,
		ResumeToken:     created.ResumeToken,
		GameParams: protocol.GameParams{
			CountryISO:       country,
			ScenarioID:       created.ScenarioID,
			StartYear:        s.tune.StartYear,
			EndYear:          s.tune.EndYear,
			CycleYears:       s.tune.CycleYears,
			BudgetPerCycle:   s.tune.BudgetPerCycle,
			TickRateHz:       s.tune.TickRateHz,
			ScoreMin:         s.tune.ScoreMin,
			ScoreMax:         s.tune.ScoreMax,
			EventDeadlineSec: s.tune.EventDeadlineSec,
		},
		Catalogs: protocol.CatalogDigests{
			DecisionsDigest:    s.cats.Decisions.Digest,
			PoliciesDigest:     s.cats.Policies.Digest,
			EventsDigest:       s.cats.Events.Digest,
			StagesDigest:       s.cats.Stages.Digest,
			AchievementsDigest: s.cats.Achievements.Digest,
			CountriesDigest:    s.cats.Countries.Digest,
		},
	}
}

func (s *Server) catalogParts() []protocol.CatalogMsg {
	decisions := make([]catalogs.DecisionDef, 0, len(s.cats.Decisions.Order))
	for _, id := range s.cats.Decisions.Order {
		decisions = append(decisions, s.cats.Decisions.ByID[id])
	}
	policies := make([]catalogs.PolicyDef, 0, len(s.cats.Policies.Order))
	for _, id := range s.cats.Policies.Order {
		policies = append(policies, s.cats.Policies.ByID[id])
	}
	events := make([]catalogs.EventDef, 0, len(s.cats.Events.Order))
	for _, id := range s.cats.Events.Order {
		events = append(events, s.cats.Events.ByID[id])
	}
	achievements := make([]catalogs.AchievementDef, 0, len(s.cats.Achievements.Order))
	for _, id := range s.cats.Achievements.Order {
		achievements = append(achievements, s.cats.Achievements.ByID[id])
	}
	countries := make([]catalogs.CountryDef, 0, len(s.cats.Countries.Order))
	for _, iso := range s.cats.Countries.Order {
		countries = append(countries, s.cats.Countries.ByISO[iso])
	}

	part := func(name, digest string, data any) protocol.CatalogMsg {
		return protocol.CatalogMsg{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            name,
			Digest:          digest,
			Part:            1,
			TotalParts:      1,
			Data:            data,
		}
	}
	return []protocol.CatalogMsg{
		part("decisions", s.cats.Decisions.Digest, decisions),
		part("policies", s.cats.Policies.Digest, policies),
		part("events", s.cats.Events.Digest, events),
		part("stages", s.cats.Stages.Digest, s.cats.Stages.Stages),
		part("achievements", s.cats.Achievements.Digest, achievements),
		part("countries", s.cats.Countries.Digest, countries),
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
