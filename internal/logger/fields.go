package logger

import (
	"time"

	"go.uber.org/zap"
)

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// Provider is the OAuth provider name.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Step is the login state the flow was in when the entry was written.
func Step(v string) zap.Field { return zap.String("step", v) }

func UserID(v int64) zap.Field { return zap.Int64("user_id", v) }
func Err(err error) zap.Field  { return zap.Error(err) }

func Issuer(v string) zap.Field         { return zap.String("issuer", v) }
func Addr(v string) zap.Field           { return zap.String("addr", v) }
func Status(v int) zap.Field            { return zap.Int("status", v) }
func Latency(v time.Duration) zap.Field { return zap.Duration("latency", v) }
