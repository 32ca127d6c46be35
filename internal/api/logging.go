package api

import "kyatlotto/internal/eventlog"

func (s *Server) logEvent(event string, fields map[string]any) {
	eventlog.Event(s.logger, event, fields)
}
