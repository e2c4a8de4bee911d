// Package http exposes a read-only status API next to the two game
// transports: server info and the channel list with member rosters.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/domain"
)

type InfoResponse struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	ClientsConnected int    `json:"clients_connected"`
	MaxClients       int    `json:"max_clients"`
}

type ChannelResponse struct {
	ID         domain.ChannelID `json:"id"`
	Name       string           `json:"name"`
	Type       string           `json:"type"`
	Order      int              `json:"order"`
	MaxClients int              `json:"max_clients"`
	Bitrate    int              `json:"bitrate,omitempty"`
	Clients    []string         `json:"clients"`
}

func SetupRouter(mode string, sessions *app.SessionTable, channels *app.ChannelRegistry, info *app.ServerInfo) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")

	api.GET("/info", func(c *gin.Context) {
		name, maxClients := info.Get()
		c.JSON(http.StatusOK, InfoResponse{
			Name:             name,
			Version:          app.Version,
			ClientsConnected: sessions.Count(),
			MaxClients:       maxClients,
		})
	})

	api.GET("/channels", func(c *gin.Context) {
		views := channels.List()
		out := make([]ChannelResponse, 0, len(views))
		for _, v := range views {
			out = append(out, ChannelResponse{
				ID:         v.Channel.ID,
				Name:       v.Channel.Name,
				Type:       v.Channel.Type.String(),
				Order:      v.Channel.Order,
				MaxClients: v.Channel.MaxClients,
				Bitrate:    v.Channel.Bitrate,
				Clients:    v.Members,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
