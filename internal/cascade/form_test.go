package cascade_test

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/issues"
)

func TestParseFormMultiGroup(t *testing.T) {
	form := url.Values{
		"cascade_down":      {"1"},
		"down_group_count":  {"3"},
		"down_ids_0":        {"4"},
		"down_status_0":     {"done"},
		"down_model_type_0": {"milestone"},
		"down_ids_1":        {"7, 8,abc,,-2"},
		"down_status_1":     {"done"},
		"down_model_type_1": {"issue"},
		"down_ids_2":        {"x,y"},
		"down_status_2":     {"done"},
		"down_model_type_2": {"subtask"},
		"cascade_up":        {"1"},
		"up_id":             {"3"},
		"up_status":         {"completed"},
		"up_model_type":     {"project"},
	}

	req := cascade.ParseForm(form)
	assert.Equal(t, []cascade.GroupChange{
		{Model: issues.ModelMilestone, IDs: []int64{4}, Status: "done"},
		{Model: issues.ModelIssue, IDs: []int64{7, 8}, Status: "done"},
	}, req.Down)
	require.NotNil(t, req.Up)
	assert.Equal(t, cascade.ParentChange{Model: issues.ModelProject, ID: 3, Status: "completed"}, *req.Up)
}

func TestParseFormLegacySingleGroup(t *testing.T) {
	form := url.Values{
		"cascade_down":    {"1"},
		"down_ids":        {"10,11"},
		"down_status":     {"in_progress"},
		"down_model_type": {"subtask"},
	}

	req := cascade.ParseForm(form)
	assert.Equal(t, []cascade.GroupChange{
		{Model: issues.ModelSubtask, IDs: []int64{10, 11}, Status: "in_progress"},
	}, req.Down)
	assert.Nil(t, req.Up)
}

func TestParseFormIgnoresUnflaggedSections(t *testing.T) {
	form := url.Values{
		"down_group_count":  {"1"},
		"down_ids_0":        {"1"},
		"down_status_0":     {"done"},
		"down_model_type_0": {"issue"},
		"cascade_up":        {"0"},
		"up_id":             {"2"},
		"up_status":         {"done"},
	}

	req := cascade.ParseForm(form)
	assert.True(t, req.Empty())
}

func TestParseFormBoundsGroupCount(t *testing.T) {
	form := url.Values{
		"cascade_down":        {"1"},
		"down_group_count":    {"2000000000"},
		"down_ids_2":          {"5"},
		"down_status_2":       {"done"},
		"down_model_type_2":   {"issue"},
		"down_ids_150":        {"6"},
		"down_status_150":     {"done"},
		"down_model_type_150": {"issue"},
	}

	req := cascade.ParseForm(form)
	assert.Equal(t, []cascade.GroupChange{
		{Model: issues.ModelIssue, IDs: []int64{5}, Status: "done"},
	}, req.Down)
}

func TestParseFormRejectsBadUpID(t *testing.T) {
	req := cascade.ParseForm(url.Values{
		"cascade_up":    {"1"},
		"up_id":         {"two"},
		"up_status":     {"done"},
		"up_model_type": {"issue"},
	})
	assert.Nil(t, req.Up)
}

func TestBuildDialogRoundTripsThroughForm(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Launch", issues.IssueDraft)
	epic := f.epic("Checkout", issues.IssueDraft, m)
	story := f.story("Cart", issues.IssueDraft, epic)
	for i := 0; i < 12; i++ {
		f.subtask(story, fmt.Sprintf("Step %d", i), issues.SubtaskTodo)
	}

	info := f.check(epic, "done")
	require.NotNil(t, info.Down)
	require.NotNil(t, info.Up)

	dialog := cascade.BuildDialog(info)
	require.NotNil(t, dialog.Down)
	assert.Equal(t, 13, dialog.Down.TotalCount)
	assert.Len(t, dialog.Down.Items, cascade.MaxDisplayedItems)
	assert.Equal(t, 3, dialog.Down.Remaining)
	assert.Equal(t, "Done", dialog.Down.TargetStatusLabel)
	assert.Equal(t, fmt.Sprint(story.ID), dialog.Down.Groups[0].IDs)
	require.NotNil(t, dialog.Up)
	assert.Equal(t, "[M-1] Launch", dialog.Up.ParentLabel)

	parsed := cascade.ParseForm(dialog.FormValues())
	want := cascade.RequestFromInfo(info, "")
	assert.Equal(t, want.Down, parsed.Down)
	assert.Equal(t, want.Up, parsed.Up)
}

func TestBuildDialogNothingOffered(t *testing.T) {
	d := cascade.BuildDialog(&cascade.Info{})
	assert.Nil(t, d.Down)
	assert.Nil(t, d.Up)
	assert.Empty(t, d.FormValues())
}
