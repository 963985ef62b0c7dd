package logger

import (
	"context"
	"fmt"
	"time"

	"lead-routing/internal/config"
	"lead-routing/internal/database"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to our worker
type LogEntry struct {
	Level   zapcore.Level
	Message string
	LeadID  string
	Stage   string
	Caller  string // Function name
	Fields  map[string]interface{}
}

// RoutingLog is the persisted form of a LogEntry.
type RoutingLog struct {
	AppID        string                 `bson:"app_id" json:"app_id"`
	Level        string                 `bson:"level" json:"level"`
	Message      string                 `bson:"message" json:"message"`
	LeadID       string                 `bson:"lead_id,omitempty" json:"lead_id,omitempty"`
	Stage        string                 `bson:"stage,omitempty" json:"stage,omitempty"`
	Caller       string                 `bson:"caller,omitempty" json:"caller,omitempty"`
	Fields       map[string]interface{} `bson:"fields,omitempty" json:"fields,omitempty"`
	CreatedOnUtc time.Time              `bson:"created_on_utc" json:"created_on_utc"`
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	collection *mongo.Collection
	logChan    chan LogEntry
	appId      string
}

// NewDBLogWriter initializes the worker
func NewDBLogWriter(mongodb *database.MongodbDB, cfg *config.Config) *DBLogWriter {
	writer := &DBLogWriter{
		collection: mongodb.DB.Collection("routing_logs"),
		logChan:    make(chan LogEntry, 1000), // Buffer 1000 logs
		appId:      cfg.AppId,
	}

	go writer.processLogs()

	return writer
}

// AddLog is called by our Zap hook
func (w *DBLogWriter) AddLog(entry LogEntry) {
	select {
	case w.logChan <- entry:
	default:
		// Channel full: drop rather than block the request path
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

func (w *DBLogWriter) processLogs() {
	for entry := range w.logChan {
		_, _ = w.collection.InsertOne(context.Background(), toRoutingLog(w.appId, entry))
	}
}

func toRoutingLog(appID string, entry LogEntry) RoutingLog {
	return RoutingLog{
		AppID:        appID,
		Level:        entry.Level.String(),
		Message:      entry.Message,
		LeadID:       entry.LeadID,
		Stage:        entry.Stage,
		Caller:       entry.Caller,
		Fields:       entry.Fields,
		CreatedOnUtc: time.Now().UTC(),
	}
}
