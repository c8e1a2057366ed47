package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/persistence"
	"github.com/cmallory/chat-relay/room"
	"github.com/spf13/cobra"
)

// A very simple CLI tool for the administration of chat-relay rooms and messages.

var configPath string

func openDirectory() (*room.Directory, persistence.Persister, error) {
	cfg, err := config.ReadConfiguration(configPath, config.GetFlagSet())
	if err != nil {
		return nil, nil, err
	}
	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		return nil, nil, err
	}
	return room.NewDirectory(persister), persister, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "chat-relay-admin",
	Short: "administration tool for chat-relay rooms and messages",
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "manage rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list <memberId>",
	Short: "list all rooms containing a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		directory, persister, err := openDirectory()
		if err != nil {
			return err
		}
		defer persister.Close()
		rooms, err := directory.ListForMember(args[0])
		if err != nil {
			return err
		}
		return printJSON(rooms)
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create <memberId>...",
	Short: "find or create the room for a member set",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		directory, persister, err := openDirectory()
		if err != nil {
			return err
		}
		defer persister.Close()
		rm, err := directory.FindOrCreate(args)
		if err != nil {
			return err
		}
		return printJSON(rm)
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <roomIdentifier>",
	Short: "list a room's messages in chronological order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, persister, err := openDirectory()
		if err != nil {
			return err
		}
		defer persister.Close()
		msgs, err := persister.MessagesByRoom(args[0])
		if err != nil {
			return err
		}
		return printJSON(msgs)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")
	roomsCmd.AddCommand(roomsListCmd, roomsCreateCmd)
	rootCmd.AddCommand(roomsCmd, messagesCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
