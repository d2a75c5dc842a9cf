package cascade

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/satyaki-up/matorral/internal/issues"
)

// MaxDisplayedItems caps how many descendants a dialog lists by name.
const MaxDisplayedItems = 10

// Dialog is the confirmation view of a preview.
type Dialog struct {
	Down *DownDialog `json:"cascade_down,omitempty"`
	Up   *UpDialog   `json:"cascade_up,omitempty"`
}

type DownDialog struct {
	TotalCount        int           `json:"total_count"`
	TargetStatusLabel string        `json:"target_status_display"`
	Items             []DialogItem  `json:"children_display"`
	Remaining         int           `json:"children_remaining"`
	Groups            []DialogGroup `json:"groups"`
}

type DialogItem struct {
	Ref         issues.Ref `json:"ref"`
	Label       string     `json:"label"`
	StatusLabel string     `json:"status_display"`
}

type DialogGroup struct {
	IDs               string       `json:"child_pks"`
	TargetStatus      string       `json:"target_status"`
	TargetStatusLabel string       `json:"target_status_display"`
	Model             issues.Model `json:"model_type"`
}

type UpDialog struct {
	Parent               issues.Ref   `json:"parent"`
	ParentLabel          string       `json:"parent_display"`
	SuggestedStatus      string       `json:"suggested_status"`
	SuggestedStatusLabel string       `json:"suggested_status_display"`
	Model                issues.Model `json:"model_type"`
}

// BuildDialog summarizes info for a human. It returns the zero Dialog when
// info offers nothing.
func BuildDialog(info *Info) Dialog {
	var d Dialog
	if info == nil {
		return d
	}
	if down := info.Down; down != nil {
		all := down.AllItems()
		dd := &DownDialog{TotalCount: down.TotalCount()}
		if len(down.Groups) > 0 {
			dd.TargetStatusLabel = down.Groups[0].TargetStatus.Label()
		}
		for i, it := range all {
			if i == MaxDisplayedItems {
				break
			}
			dd.Items = append(dd.Items, DialogItem{
				Ref:         it.Ref(),
				Label:       it.String(),
				StatusLabel: it.CurrentStatus().Label(),
			})
		}
		if len(all) > MaxDisplayedItems {
			dd.Remaining = len(all) - MaxDisplayedItems
		}
		for _, g := range down.Groups {
			ids := make([]string, 0, len(g.Items))
			for _, id := range g.IDs() {
				ids = append(ids, strconv.FormatInt(id, 10))
			}
			dd.Groups = append(dd.Groups, DialogGroup{
				IDs:               strings.Join(ids, ","),
				TargetStatus:      g.TargetStatus.String(),
				TargetStatusLabel: g.TargetStatus.Label(),
				Model:             g.Model,
			})
		}
		d.Down = dd
	}
	if up := info.Up; up != nil {
		d.Up = &UpDialog{
			Parent:               up.Parent.Ref(),
			ParentLabel:          up.Parent.String(),
			SuggestedStatus:      up.SuggestedStatus.String(),
			SuggestedStatusLabel: up.SuggestedStatus.Label(),
			Model:                up.Model,
		}
	}
	return d
}

// FormValues encodes the dialog as the fields ParseForm reads back.
func (d Dialog) FormValues() url.Values {
	v := url.Values{}
	if d.Down != nil && len(d.Down.Groups) > 0 {
		v.Set("cascade_down", "1")
		v.Set("down_group_count", strconv.Itoa(len(d.Down.Groups)))
		for i, g := range d.Down.Groups {
			suffix := "_" + strconv.Itoa(i)
			v.Set("down_ids"+suffix, g.IDs)
			v.Set("down_status"+suffix, g.TargetStatus)
			v.Set("down_model_type"+suffix, string(g.Model))
		}
	}
	if d.Up != nil {
		v.Set("cascade_up", "1")
		v.Set("up_id", strconv.FormatInt(d.Up.Parent.ID, 10))
		v.Set("up_status", d.Up.SuggestedStatus)
		v.Set("up_model_type", string(d.Up.Model))
	}
	return v
}
