package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cmallory/chat-relay/auth"
	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/globals"
	"github.com/cmallory/chat-relay/persistence"
	"github.com/cmallory/chat-relay/room"
	"github.com/cmallory/chat-relay/ws"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for the listener (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for the listener (optional)")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	resolver, err := auth.NewResolver(cfg)
	if err != nil {
		panic(err)
	}

	directory := room.NewDirectory(persister)
	registry := ws.NewRegistry()
	handler := ws.NewHandler(registry, resolver, directory, persister, cfg)

	router := mux.NewRouter()
	router.Handle("/ws", handler).Methods(http.MethodGet)
	router.HandleFunc("/rooms", listRooms(directory)).Methods(http.MethodGet)
	router.HandleFunc("/rooms", createRoom(directory)).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/messages", listMessages(persister)).Methods(http.MethodGet)

	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = cronRunner.AddFunc("@every 1m", func() {
		for _, roomIdentifier := range registry.ActiveRooms() {
			handler.SendInfo(roomIdentifier)
		}
	})
	if err != nil {
		panic(err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	srv := &http.Server{Addr: *addr, Handler: router}
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = srv.ListenAndServeTLS(*sslCert, *sslKey)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		globals.AppLogger.Error("stopped listening", "error", err)
	}
}

// listRooms returns all rooms containing the given member.
func listRooms(directory *room.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberId := r.URL.Query().Get("memberId")
		if memberId == "" {
			http.Error(w, "memberId required", http.StatusBadRequest)
			return
		}
		rooms, err := directory.ListForMember(memberId)
		if err != nil {
			globals.AppLogger.Error("could not list rooms", "error", err)
			http.Error(w, "could not list rooms", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rooms)
	}
}

// createRoom finds or creates the room for a member-id set.
func createRoom(directory *room.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MemberIds []string `json:"memberIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.MemberIds) == 0 {
			http.Error(w, "memberIds required", http.StatusBadRequest)
			return
		}
		rm, err := directory.FindOrCreate(req.MemberIds)
		if err != nil {
			globals.AppLogger.Error("could not find or create room", "error", err)
			http.Error(w, "could not find or create room", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rm)
	}
}

// listMessages returns a room's history in chronological order.
func listMessages(persister persistence.Persister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomIdentifier := mux.Vars(r)["room"]
		msgs, err := persister.MessagesByRoom(roomIdentifier)
		if err != nil {
			globals.AppLogger.Error("could not list messages", "room", roomIdentifier, "error", err)
			http.Error(w, "could not list messages", http.StatusInternalServerError)
			return
		}
		writeJSON(w, msgs)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}
