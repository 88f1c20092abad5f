package logging

import "log/slog"

// Field names shared by every component so log queries stay uniform.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldRetryNum    = "slack_retry_num"
	FieldRetryReason = "slack_retry_reason"
	FieldTeamID      = "team_id"
	FieldChannel     = "channel"
	FieldUser        = "user"
	FieldBlockID     = "block_id"
	FieldSubjectID   = "subject_id"
	FieldEventID     = "event_id"
	FieldEventType   = "event_type"
	FieldPayloadType = "payload_type"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func TeamID(id string) slog.Attr {
	return slog.String(FieldTeamID, id)
}

func Channel(id string) slog.Attr {
	return slog.String(FieldChannel, id)
}

func User(id string) slog.Attr {
	return slog.String(FieldUser, id)
}

func BlockID(id string) slog.Attr {
	return slog.String(FieldBlockID, id)
}

// BlockIDs logs a fan-out recipient list.
func BlockIDs(ids []string) slog.Attr {
	return slog.Any(FieldBlockID, ids)
}

func SubjectID(id string) slog.Attr {
	return slog.String(FieldSubjectID, id)
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

func PayloadType(t string) slog.Attr {
	return slog.String(FieldPayloadType, t)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns an attribute for err. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
