package router

import (
	"context"

	"planbot/internal/config"
	"planbot/internal/digest"
	"planbot/internal/runtime/supervisor"
	"planbot/internal/schedule"
)

// Aliases keep handler code free of deep import paths while the router stays
// the only package that knows where these live.

type Config = config.Config

type ConfigManager = config.ConfigManager

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.NewSupervisor

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

type RestartOption = supervisor.RestartOption

var WithRestartBackoff = supervisor.WithRestartBackoff

var WithMaxRestarts = supervisor.WithMaxRestarts

var WithFatalOnFinalError = supervisor.WithFatalOnFinalError

var WithPublishFirstError = supervisor.WithPublishFirstError

var WithStopOnCleanExit = supervisor.WithStopOnCleanExit

// PlannerPort is the slice of the planner registry the handlers need.
type PlannerPort interface {
	Add(chatID, actorID int64, name, start, end string, days schedule.DaySet) (schedule.ClassEntry, error)
	Entries(chatID int64) []schedule.ClassEntry
	Plan(chatID int64) []schedule.Selected
	Clear(chatID, actorID int64) int
	Stats() (chats, entries int)
}

// DigestPort is the slice of the digest service the handlers need.
type DigestPort interface {
	Enabled() bool
	Subscribed(chatID int64) bool
	Subscribe(ctx context.Context, chatID int64, threadID int, at string) error
	Unsubscribe(ctx context.Context, chatID int64) error
	RunNow(ctx context.Context, chatID int64) error
	Stats() digest.Stats
}
