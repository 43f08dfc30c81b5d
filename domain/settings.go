package domain

import "github.com/bytedance/sonic"

// Settings is the board-wide client settings document. Its shape belongs to the
// clients; the engine stores and returns it verbatim.
type Settings = sonic.NoCopyRawMessage

// EmptySettings is returned when nothing has been stored yet.
var EmptySettings = Settings("{}")
