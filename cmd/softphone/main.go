// Command softphone is a terminal demo client for the call engine. It
// logs in against the relay, drives one call session from stdin, and
// prints session events as they happen.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/config"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/call"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/media"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/ringtone"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/settings"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: softphone <username>")
		os.Exit(1)
	}
	userID := os.Args[1]
	cfg := config.Load()

	token, err := login(cfg.Client.RelayURL, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}

	store, err := settings.Open(cfg.Client.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("settings store open failed")
	}
	defer store.Close()

	prefs, err := store.Load(userID)
	if err != nil {
		log.Warn().Err(err).Msg("preferences load failed, using defaults")
		prefs = settings.DefaultPreferences(userID)
	}

	player := ringtone.NewPlayer(consoleOutput{})
	player.SetVolume(prefs.Volume)
	if prefs.RingtoneURL != "" {
		player.Configure(ringtone.AssetConfig{
			URL:       prefs.RingtoneURL,
			LoopStart: prefs.LoopStart,
			LoopEnd:   prefs.LoopEnd,
		})
	}

	tr := transport.New(transport.DefaultConfig(cfg.Client.RelayURL, token))

	mgrCfg := call.DefaultConfig()
	mgrCfg.RingTimeout = cfg.Client.RingTimeout
	mgrCfg.StunServers = cfg.Client.StunServers
	mgr := call.NewManager(mgrCfg, tr, media.StaticDevices{}, player)
	mgr.SetDnd(prefs.Dnd)

	tr.OnEnvelope = mgr.HandleEnvelope
	tr.OnDown = mgr.HandleTransportDown
	tr.OnRegistered = func() {
		fmt.Println("* registered with relay")
	}

	subscribeEvents(mgr)

	if err := mgr.Initialize(userID); err != nil {
		log.Fatal().Err(err).Msg("initialize failed")
	}
	defer mgr.Shutdown()

	repl(mgr, store, prefs)
}

func subscribeEvents(mgr *call.Manager) {
	mgr.AddEventListener(call.EventIncomingCall, func(e call.Event) {
		fmt.Printf("* incoming %s call from %s (accept/reject?)\n", e.CallType, e.Peer)
	})
	mgr.AddEventListener(call.EventCallAccepted, func(e call.Event) {
		fmt.Printf("* %s accepted, negotiating\n", e.Peer)
	})
	mgr.AddEventListener(call.EventCallRejected, func(e call.Event) {
		fmt.Printf("* %s rejected the call: %s\n", e.Peer, e.Reason)
	})
	mgr.AddEventListener(call.EventRemoteStream, func(e call.Event) {
		fmt.Println("* remote media arrived")
	})
	mgr.AddEventListener(call.EventCallEnded, func(e call.Event) {
		fmt.Printf("* call ended (%s)\n", e.Reason)
	})
	mgr.AddEventListener(call.EventHold, func(e call.Event) {
		fmt.Println("* call on hold")
	})
	mgr.AddEventListener(call.EventResume, func(e call.Event) {
		fmt.Println("* call resumed")
	})
	mgr.AddEventListener(call.EventTransferring, func(e call.Event) {
		fmt.Printf("* transfer requested by %s (party %s)\n", e.Peer, e.PartyID)
	})
	mgr.AddEventListener(call.EventQualityChange, func(e call.Event) {
		if e.Quality != nil {
			fmt.Printf("* quality: %s (rtt %s, loss %.1f%%)\n",
				e.Quality.Level, e.Quality.RTT, e.Quality.LossPercent)
		}
	})
	mgr.AddEventListener(call.EventError, func(e call.Event) {
		fmt.Printf("* error: %v\n", e.Err)
	})
}

func repl(mgr *call.Manager, store *settings.Store, prefs settings.Preferences) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: call <user> [video] | accept | reject | hold | resume | mute | video | end | dnd on|off | quit")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user> [video]")
				continue
			}
			ct := signal.CallTypeAudio
			if len(fields) > 2 && fields[2] == "video" {
				ct = signal.CallTypeVideo
			}
			err = mgr.StartCall(fields[1], ct)
		case "accept":
			err = mgr.AcceptCall()
		case "reject":
			err = mgr.RejectCall("declined")
		case "hold":
			err = mgr.HoldCall()
		case "resume":
			err = mgr.ResumeCall()
		case "mute":
			fmt.Printf("audio enabled: %v\n", mgr.ToggleAudio())
		case "video":
			fmt.Printf("video enabled: %v\n", mgr.ToggleVideo())
		case "end":
			err = mgr.EndCall()
		case "dnd":
			on := len(fields) > 1 && fields[1] == "on"
			mgr.SetDnd(on)
			prefs.Dnd = on
			if err = store.Save(prefs); err == nil {
				fmt.Printf("dnd: %v\n", on)
			}
		case "quit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
		if err != nil {
			fmt.Println("error:", err)
		}
	}
}

// login trades a username for a relay token. The relay URL is the
// websocket endpoint; the HTTP API lives on the same host.
func login(relayURL, username string) (string, error) {
	base := strings.Replace(relayURL, "ws://", "http://", 1)
	base = strings.Replace(base, "wss://", "https://", 1)
	base = strings.TrimSuffix(base, "/ws")

	body, _ := json.Marshal(map[string]string{"username": username, "password": "demo"})
	resp, err := http.Post(base+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected: %s", resp.Status)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("login response: %w", err)
	}
	return out.Token, nil
}

// consoleOutput narrates ringtone activity instead of producing audio;
// the demo has no speaker path.
type consoleOutput struct{}

func (consoleOutput) PlayAsset(url string, loopStart, loopEnd time.Duration) (func(), error) {
	fmt.Printf("* [ring] asset %s\n", url)
	return func() {}, nil
}

func (consoleOutput) PlayTone(pcm []int16, sampleRate int) (func(), error) {
	fmt.Printf("* [ring] tone burst (%d samples @ %d Hz)\n", len(pcm), sampleRate)
	return func() {}, nil
}

func (consoleOutput) SetVolume(v float64) {}
