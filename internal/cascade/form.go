package cascade

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/satyaki-up/matorral/internal/issues"
)

// MaxDownGroups bounds down_group_count. A dialog carries at most one group
// per table.
const MaxDownGroups = 100

// ParseForm rebuilds an apply request from the confirmation dialog's fields.
// The indexed multi-group layout (down_group_count, down_ids_<i>, ...) is
// preferred; without a positive group count the single-group fields
// down_ids, down_status and down_model_type are read instead. Non-numeric
// ids are dropped and groups without ids or status are left out. Group
// indexes at or beyond MaxDownGroups are not read. Actor is not part of the
// form.
func ParseForm(form url.Values) ApplyRequest {
	var req ApplyRequest

	if truthy(form.Get("cascade_down")) {
		count, err := strconv.Atoi(strings.TrimSpace(form.Get("down_group_count")))
		if err == nil && count > 0 {
			count = min(count, MaxDownGroups)
			for i := 0; i < count; i++ {
				suffix := "_" + strconv.Itoa(i)
				addGroup(&req, form.Get("down_ids"+suffix), form.Get("down_status"+suffix), form.Get("down_model_type"+suffix))
			}
		} else {
			addGroup(&req, form.Get("down_ids"), form.Get("down_status"), form.Get("down_model_type"))
		}
	}

	if truthy(form.Get("cascade_up")) {
		id, err := strconv.ParseInt(strings.TrimSpace(form.Get("up_id")), 10, 64)
		status := strings.TrimSpace(form.Get("up_status"))
		if err == nil && id > 0 && status != "" {
			req.Up = &ParentChange{
				Model:  issues.Model(strings.TrimSpace(form.Get("up_model_type"))),
				ID:     id,
				Status: status,
			}
		}
	}
	return req
}

func addGroup(req *ApplyRequest, rawIDs, status, model string) {
	ids := ParseIDs(rawIDs)
	status = strings.TrimSpace(status)
	if len(ids) == 0 || status == "" {
		return
	}
	req.Down = append(req.Down, GroupChange{
		Model:  issues.Model(strings.TrimSpace(model)),
		IDs:    ids,
		Status: status,
	})
}

// ParseIDs splits a comma-separated id list, dropping anything that is not a
// positive integer.
func ParseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
