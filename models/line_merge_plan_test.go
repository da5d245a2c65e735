package models

import (
	"testing"
)

func planActions(plan []lineMergeStep) map[int]lineAction {
	actions := make(map[int]lineAction, len(plan))
	for _, step := range plan {
		actions[step.Index] = step.Action
	}
	return actions
}

func TestBuildLineMergePlan_SameLength(t *testing.T) {
	plan := buildLineMergePlan([]int{11, 12, 13}, 3, nil)
	if len(plan) != 3 {
		t.Fatalf("expected 3 steps; got %d", len(plan))
	}
	for _, step := range plan {
		if step.Action != lineActionUpdate {
			t.Fatalf("expected update at index %d; got %d", step.Index, step.Action)
		}
	}
	if plan[0].ExistingId != 11 || plan[2].ExistingId != 13 {
		t.Fatalf("positional matching broken: %+v", plan)
	}
}

func TestBuildLineMergePlan_GrowingSet(t *testing.T) {
	plan := buildLineMergePlan([]int{11}, 3, nil)
	actions := planActions(plan)
	if actions[0] != lineActionUpdate || actions[1] != lineActionCreate || actions[2] != lineActionCreate {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestBuildLineMergePlan_ShrinkingSetDeletesUnreferenced(t *testing.T) {
	plan := buildLineMergePlan([]int{11, 12, 13}, 2, nil)
	actions := planActions(plan)
	if actions[0] != lineActionUpdate || actions[1] != lineActionUpdate {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if actions[2] != lineActionDelete {
		t.Fatalf("expected trailing line deleted; got %d", actions[2])
	}
}

func TestBuildLineMergePlan_ReferencedTrailingLineKept(t *testing.T) {
	// Three lines edited down to two, but the third has a downstream
	// reference: it survives the save.
	plan := buildLineMergePlan([]int{11, 12, 13}, 2, map[int]bool{13: true})
	actions := planActions(plan)
	if actions[2] != lineActionKeep {
		t.Fatalf("expected referenced line kept; got %d", actions[2])
	}
	if plan[2].ExistingId != 13 {
		t.Fatalf("expected kept step to target line 13; got %d", plan[2].ExistingId)
	}
}

func TestBuildLineMergePlan_MixedTrailing(t *testing.T) {
	plan := buildLineMergePlan([]int{11, 12, 13, 14}, 1, map[int]bool{12: true, 14: true})
	actions := planActions(plan)
	if actions[1] != lineActionKeep || actions[3] != lineActionKeep {
		t.Fatalf("expected referenced lines kept: %+v", plan)
	}
	if actions[2] != lineActionDelete {
		t.Fatalf("expected unreferenced line deleted: %+v", plan)
	}
}
