// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"context"
	"log/slog"
	"strings"

	"github.com/holomush/scriptbox/internal/observability"
)

// Tokenize splits a forbid list on commas and spaces. Empty tokens are dropped.
func Tokenize(list string) []string {
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

// ForbidCallIns revokes every call-in named in list from inst and retracts
// its subscription from events. Unknown and already forbidden names are
// ignored. It returns the names that were revoked by this call.
func ForbidCallIns(ctx context.Context, inst *Instance, events Events, list string) []string {
	var revoked []string
	for _, name := range Tokenize(list) {
		code, ok := inst.registry.CodeFor(name)
		if !ok || !inst.forbid(code) {
			continue
		}
		canonical, _ := inst.registry.Canonical(name)
		if events != nil {
			events.Unsubscribe(inst, canonical)
		}
		slog.InfoContext(ctx, "call-in is forbidden", "sandbox", inst.name, "callin", name)
		observability.RecordCallInForbidden(canonical)
		revoked = append(revoked, name)
	}
	return revoked
}
