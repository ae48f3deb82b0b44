// A scripted player for smoke-testing a running server: it joins, plays every
// cycle with a naive strategy, answers events, and quits when the game ends.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"ohisim.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		country  = flag.String("country", "BRA", "country iso")
		scenario = flag.String("scenario", "", "scenario id (empty: server default)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		CountryISO:      *country,
		ScenarioID:      *scenario,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{conn: conn, log: logger}
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.playerID = w.PlayerID
			logger.Printf("WELCOME session=%s player=%s years=%d..%d",
				w.SessionID, w.PlayerID, w.GameParams.StartYear, w.GameParams.EndYear)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if done := b.handleState(&st); done {
				return
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			b.handleEvent(&ev)

		case protocol.TypeResults:
			var res protocol.ResultsMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			logger.Printf("RESULTS year=%d score=%.2f rank=%d", res.Year, res.Score, res.Rank)
			b.send(protocol.Instant{ID: b.nextID("ack"), Type: protocol.InstAckResults})
		}
	}
}

type bot struct {
	conn     *websocket.Conn
	log      *log.Logger
	playerID string
	seq      int

	confirmedCycle int
}

func (b *bot) nextID(kind string) string {
	b.seq++
	return fmt.Sprintf("I_%s_%d", kind, b.seq)
}

func (b *bot) send(insts ...protocol.Instant) {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		PlayerID:        b.playerID,
		Instants:        insts,
	}
	if err := b.conn.WriteJSON(act); err != nil {
		b.log.Printf("send ACT: %v", err)
	}
}

// handleState plays one cycle: pick the first affordable offered decision,
// spread the budget evenly, confirm. Returns true when the game is over.
func (b *bot) handleState(st *protocol.StateMsg) bool {
	switch st.Phase {
	case "ended":
		b.log.Printf("game over: year=%d score=%.2f stage=%s", st.Year, st.Score, st.Stage)
		return true
	case "playing":
		if st.Cycle == b.confirmedCycle && st.Cycle > 0 {
			return false
		}
		if len(st.Selected) == 0 && len(st.Decisions) > 0 {
			b.send(protocol.Instant{
				ID:         b.nextID("sel"),
				Type:       protocol.InstSelectDecision,
				DecisionID: st.Decisions[0],
			})
			return false
		}
		if len(st.Selected) > 0 && st.Budget.Remaining > 0 {
			per := st.Budget.Remaining / 4
			if per > 0 {
				for _, pillar := range []string{"governance", "hazard_control", "health_vigilance", "restoration"} {
					b.send(protocol.Instant{
						ID:     b.nextID("alloc"),
						Type:   protocol.InstAllocate,
						Pillar: pillar,
						Points: per,
					})
				}
			}
			b.confirmedCycle = st.Cycle
			b.send(protocol.Instant{ID: b.nextID("confirm"), Type: protocol.InstConfirmDecisions})
		}
	}
	return false
}

func (b *bot) handleEvent(ev *protocol.EventMsg) {
	if len(ev.Event.Choices) == 0 {
		b.send(protocol.Instant{ID: b.nextID("dismiss"), Type: protocol.InstDismissEvent, EventID: ev.Event.EventID})
		return
	}
	b.log.Printf("EVENT %s: %s", ev.Event.EventID, ev.Event.Title)
	b.send(protocol.Instant{
		ID:       b.nextID("resolve"),
		Type:     protocol.InstResolveEvent,
		EventID:  ev.Event.EventID,
		ChoiceID: ev.Event.Choices[0].ChoiceID,
	})
}
