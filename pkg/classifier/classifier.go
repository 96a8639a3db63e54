package classifier

import (
	"github.com/opscart/index-maint/pkg/models"
)

// Decide maps fragmentation and size to an action. Rules are evaluated in
// order and the first match wins:
//
//  1. size below the minimum        -> NONE
//  2. fragmentation >= rebuild      -> REBUILD
//  3. fragmentation >= reorganize   -> REORGANIZE
//  4. otherwise                     -> NONE
func Decide(fragmentation float64, size int64, policy models.Policy) models.ActionType {
	if size < policy.MinSizeUnits {
		return models.ActionNone
	}
	if fragmentation >= policy.RebuildThreshold {
		return models.ActionRebuild
	}
	if fragmentation >= policy.ReorganizeThreshold {
		return models.ActionReorganize
	}
	return models.ActionNone
}

// Classify returns the action for a structure and the command that carries
// it out. The command is nil exactly when the action is NONE.
func Classify(target string, s models.RawStructure, policy models.Policy) (models.ActionType, *models.Command) {
	action := Decide(s.FragmentationPercent, s.SizeUnits, policy)
	return action, GenerateCommand(action, target, s)
}

// GenerateCommand builds the maintenance command for an action
func GenerateCommand(action models.ActionType, target string, s models.RawStructure) *models.Command {
	switch action {
	case models.ActionRebuild:
		return &models.Command{
			Target:     target,
			Verb:       models.ActionRebuild,
			Schema:     s.Schema,
			Object:     s.Object,
			Index:      s.Index,
			FillFactor: models.RebuildFillFactor,
			Online:     false,
		}
	case models.ActionReorganize:
		return &models.Command{
			Target: target,
			Verb:   models.ActionReorganize,
			Schema: s.Schema,
			Object: s.Object,
			Index:  s.Index,
			Online: true,
		}
	default:
		return nil
	}
}

// NewRecord builds a classified, pending structure record
func NewRecord(target string, s models.RawStructure, policy models.Policy) *models.StructureRecord {
	action, cmd := Classify(target, s, policy)
	return &models.StructureRecord{
		Target:               target,
		Schema:               s.Schema,
		Object:               s.Object,
		ObjectKind:           s.Kind,
		Index:                s.Index,
		IndexType:            s.IndexType,
		FragmentationPercent: s.FragmentationPercent,
		SizeUnits:            s.SizeUnits,
		Action:               action,
		Command:              cmd,
		Status:               models.StatusPending,
	}
}
