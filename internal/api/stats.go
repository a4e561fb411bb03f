package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/indi-bridge/internal/device"
	"github.com/nerrad567/indi-bridge/internal/indi"
	"github.com/nerrad567/indi-bridge/internal/indiserver"
)

// SystemStats is the response of GET /api/v1/stats.
type SystemStats struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeStats      `json:"runtime"`
	WebSocket     WSStats           `json:"websocket"`
	MQTT          *MQTTStats        `json:"mqtt,omitempty"`
	INDI          *indi.Stats       `json:"indi,omitempty"`
	INDIServer    *indiserver.Stats `json:"indiserver,omitempty"`
	Registry      device.Stats      `json:"registry"`
	Database      *DatabaseStats    `json:"database,omitempty"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStats contains WebSocket hub statistics.
type WSStats struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedFrames    uint64 `json:"dropped_frames"`
}

// MQTTStats contains MQTT client statistics.
type MQTTStats struct {
	Connected bool `json:"connected"`
}

// DatabaseStats contains database connection pool statistics.
type DatabaseStats struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSStats{ConnectedClients: s.hub.ClientCount(), DroppedFrames: s.hub.Dropped()},
		Registry:  s.registry.GetStats(),
	}

	if s.mqtt != nil {
		stats.MQTT = &MQTTStats{Connected: s.mqtt.IsConnected()}
	}
	if s.indi != nil {
		indiStats := s.indi.Stats()
		stats.INDI = &indiStats
	}
	if s.supervisor != nil {
		serverStats := s.supervisor.Stats()
		stats.INDIServer = &serverStats
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		stats.Database = &DatabaseStats{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, stats)
}
