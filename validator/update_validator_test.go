package validator

import (
	"testing"
	"time"

	"github.com/harbormaster-io/harbormaster/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pathPtr(p model.PathID) *model.PathID { return &p }

func TestCheckGroupUpdateModeExclusivity(t *testing.T) {
	rollback := time.Now()
	scale := 1.5

	for name, update := range map[string]*model.GroupUpdate{
		"structural edit":  {ID: pathPtr("sub"), Apps: []*model.App{{ID: "app", Instances: 1}}},
		"version rollback": {Version: &rollback},
		"scale factor":     {ScaleBy: &scale},
		"empty payload":    {},
		// a bare id is mode neutral: it names the rollback/scale target
		"scoped rollback": {ID: pathPtr("sub"), Version: &rollback},
		"scoped scale":    {ID: pathPtr("sub"), ScaleBy: &scale},
	} {
		result := CheckGroupUpdate(update, model.RootPath, nil)
		assert.True(t, result.IsAccepted(), "%s alone should be accepted", name)
	}

	for name, update := range map[string]*model.GroupUpdate{
		"edit+rollback":  {ID: pathPtr("sub"), Apps: []*model.App{{ID: "app", Instances: 1}}, Version: &rollback},
		"edit+scale":     {Apps: []*model.App{{ID: "app", Instances: 1}}, ScaleBy: &scale},
		"rollback+scale": {Version: &rollback, ScaleBy: &scale},
		"all three":      {ID: pathPtr("sub"), Apps: []*model.App{{ID: "app", Instances: 1}}, Version: &rollback, ScaleBy: &scale},
	} {
		result := CheckGroupUpdate(update, model.RootPath, nil)
		assert.False(t, result.IsAccepted(), "%s must be rejected", name)
	}
}

func TestCheckGroupUpdateModeExclusivityBeatsTreeValidity(t *testing.T) {
	// a payload mixing modes is rejected even if every nested spec is fine
	rollback := time.Now()
	update := &model.GroupUpdate{
		ID:      pathPtr("/ok"),
		Apps:    []*model.App{{ID: "app", CPUs: 1, Mem: 64, Instances: 1}},
		Version: &rollback,
	}

	result := CheckGroupUpdate(update, model.RootPath, nil)
	require.False(t, result.IsAccepted())
	assert.True(t, result.Violations().HasPath("/ok"))
}

func TestCheckGroupUpdateNestedBases(t *testing.T) {
	// app ids inside a nested update resolve against the nearest enclosing
	// declared identifier; ../../escape climbs out of the base and fails
	update := &model.GroupUpdate{
		ID: pathPtr("outer"),
		Groups: []*model.GroupUpdate{{
			ID:   pathPtr("inner"),
			Apps: []*model.App{{ID: "fine", Instances: 1}, {ID: "../../../escape", Instances: 1}},
		}},
	}

	result := CheckGroupUpdate(update, "/base", nil)
	require.False(t, result.IsAccepted())
	assert.True(t, result.Violations().HasPath("../../../escape"))
	assert.False(t, result.Violations().HasPath("fine"))
}

func TestCheckGroupUpdateRecursesThroughAllLevels(t *testing.T) {
	// violations three levels down still surface, with each level's ids
	// resolved against its enclosing scope
	update := &model.GroupUpdate{
		ID: pathPtr("l1"),
		Groups: []*model.GroupUpdate{{
			ID: pathPtr("l2"),
			Groups: []*model.GroupUpdate{{
				ID:   pathPtr("l3"),
				Apps: []*model.App{{ID: "app", Mem: -1, Instances: 1}},
			}},
		}},
	}

	result := CheckGroupUpdate(update, model.RootPath, nil)
	require.False(t, result.IsAccepted())
	assert.True(t, result.Violations().HasPath("/l1/l2/l3/app/mem"))
}

func TestCheckGroupUpdateBadUpdateID(t *testing.T) {
	update := &model.GroupUpdate{ID: pathPtr("/elsewhere/x")}

	result := CheckGroupUpdate(update, "/base", nil)
	assert.False(t, result.IsAccepted())
	assert.True(t, result.Violations().HasPath("/elsewhere/x"))
}

func TestCheckGroupUpdateNestedSpecValidation(t *testing.T) {
	update := &model.GroupUpdate{
		ID:   pathPtr("sub"),
		Apps: []*model.App{{ID: "app", CPUs: -1, Instances: 1}},
		Pods: []*model.Pod{{ID: "pod", Instances: -2}},
	}

	result := CheckGroupUpdate(update, model.RootPath, nil)
	require.False(t, result.IsAccepted())
	assert.True(t, result.Violations().HasPath("/sub/app/cpus"))
	assert.True(t, result.Violations().HasPath("/sub/pod/instances"))
}

func TestCheckGroupUpdateNegativeScale(t *testing.T) {
	scale := -1.0
	update := &model.GroupUpdate{ScaleBy: &scale}

	result := CheckGroupUpdate(update, "/base", nil)
	assert.False(t, result.IsAccepted())
	assert.True(t, result.Violations().HasPath("/base/scaleBy"))
}
