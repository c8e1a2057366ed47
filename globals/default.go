package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "chat-relay",
	Level: hclog.LevelFromString("INFO"),
})
