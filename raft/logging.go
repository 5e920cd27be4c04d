// raft/logging.go
package raft

import (
	"fmt"
	"log"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Logger provides structured logging for one partition's actor
// (sm, wal, or responder).
type Logger struct {
	partition int
	entity    string
	level     LogLevel
}

// NewLogger creates a new logger for a partition's actor.
func NewLogger(partition int, entity string, level LogLevel) *Logger {
	return &Logger{
		partition: partition,
		entity:    entity,
		level:     level,
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.level <= INFO {
		l.log("INFO", format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level <= WARN {
		l.log("WARN", format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.level <= ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *Logger) log(level, format string, args ...interface{}) {
	timestamp := time.Now().Format("15:04:05.000")
	prefix := fmt.Sprintf("[%s] [p%d/%s] [%s] ", timestamp, l.partition, l.entity, level)
	log.Printf(prefix+format, args...)
}

// Specialized log functions for Raft events

func (l *Logger) LogStateChange(oldRole, newRole Role, term uint64) {
	emoji := map[Role]string{
		Follower:  "👤",
		Candidate: "🗳️",
		Leader:    "👑",
	}
	l.Info("%s %s → %s %s (term=%d)",
		emoji[oldRole], oldRole,
		emoji[newRole], newRole, term)
}

func (l *Logger) LogElectionStart(term uint64) {
	l.Info("🗳️  starting election for term %d", term)
}

func (l *Logger) LogElectionWon(term uint64, votes, needed int) {
	l.Info("👑 won election for term %d (votes=%d/%d)", term, votes, needed)
}

func (l *Logger) LogElectionLost(term uint64, votes, needed int) {
	l.Info("❌ reverted to follower for term %d (votes=%d/%d)", term, votes, needed)
}

func (l *Logger) LogVoteGranted(candidate string, term uint64) {
	l.Debug("✅ granted vote to %s for term %d", candidate, term)
}

func (l *Logger) LogVoteDenied(candidate string, term uint64, reason string) {
	l.Debug("❌ denied vote to %s for term %d: %s", candidate, term, reason)
}

func (l *Logger) LogHeartbeatSent(term uint64, peerCount int) {
	l.Debug("💓 sent heartbeat to %d peers (term=%d)", peerCount, term)
}

func (l *Logger) LogHeartbeatReceived(leader string, term uint64) {
	l.Debug("💓 received heartbeat from %s (term=%d)", leader, term)
}

func (l *Logger) LogCommit(id, term uint64) {
	l.Info("✅ committed id=%d (term=%d)", id, term)
}

func (l *Logger) LogStepDown(oldTerm, newTerm uint64) {
	l.Info("⬇️  stepping down: term %d → %d", oldTerm, newTerm)
}

func (l *Logger) LogElectionTimeout() {
	l.Debug("⏰ election timeout, becoming candidate")
}

func (l *Logger) LogSlowHandler(kind string, elapsed time.Duration, thresholdMs int) {
	l.Warn("🐢 slow handler: %s took %v (threshold=%dms)", kind, elapsed, thresholdMs)
}
