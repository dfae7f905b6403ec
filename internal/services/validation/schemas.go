package validation

import (
	"github.com/ternarybob/gazette/internal/models"
)

// taskImmutableFields can never appear in an update patch
var taskImmutableFields = []string{"id", "created_at", "crawler_id"}

// taskUpdatableFields is the declared set an update patch may touch
var taskUpdatableFields = []string{
	"name", "is_auto", "is_active", "cron_expression", "task_args",
}

// TaskCreate is the coerced output of the create schema
type TaskCreate struct {
	Name           string
	CrawlerID      string
	IsAuto         bool
	IsActive       bool
	CronExpression string
	Args           map[string]interface{}
}

// TaskUpdate is the coerced output of the update schema. Pointer fields are
// nil when the patch did not touch them.
type TaskUpdate struct {
	Name           *string
	IsAuto         *bool
	IsActive       *bool
	CronExpression *string
	Args           map[string]interface{}
}

// ValidateTaskCreate runs the create schema: every field validator, then the
// cross-field invariants (is_auto requires a cron expression)
func ValidateTaskCreate(data map[string]interface{}) (*TaskCreate, error) {
	var errs Errors

	name, err := Str("name", data["name"], StrOpts{MaxLen: 255, Required: true})
	if err != nil {
		errs = append(errs, err.(*FieldError))
	}
	crawlerID, err := Str("crawler_id", data["crawler_id"], StrOpts{MaxLen: 64, Required: true})
	if err != nil {
		errs = append(errs, err.(*FieldError))
	}
	isAuto, err := Bool("is_auto", data["is_auto"], false)
	if err != nil {
		errs = append(errs, err.(*FieldError))
	}
	isActive, err := Bool("is_active", data["is_active"], false)
	if err != nil {
		errs = append(errs, err.(*FieldError))
	}
	cronExpr, err := CronExpression("cron_expression", data["cron_expression"], false)
	if err != nil {
		errs = append(errs, err.(*FieldError))
	}
	args, err := TaskArgs("task_args", data["task_args"], true)
	if err != nil {
		if fe, ok := err.(*FieldError); ok {
			errs = append(errs, fe)
		} else {
			errs = append(errs, NewFieldError("task_args", "%v", err))
		}
	}

	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	out := &TaskCreate{
		Args:     args,
		IsActive: true,
	}
	if name != nil {
		out.Name = *name
	}
	if crawlerID != nil {
		out.CrawlerID = *crawlerID
	}
	if isAuto != nil {
		out.IsAuto = *isAuto
	}
	if isActive != nil {
		out.IsActive = *isActive
	}
	if cronExpr != nil {
		out.CronExpression = *cronExpr
	}

	if out.IsAuto && out.CronExpression == "" {
		return nil, Errors{NewFieldError("cron_expression", "is required when is_auto is true")}
	}
	return out, nil
}

// ValidateTaskUpdate runs the update schema: immutable fields are rejected
// before any field validator runs, and the patch must touch at least one
// declared updatable field
func ValidateTaskUpdate(patch map[string]interface{}) (*TaskUpdate, error) {
	var errs Errors

	for _, field := range taskImmutableFields {
		if _, present := patch[field]; present {
			errs = append(errs, NewFieldError(field, "is immutable"))
		}
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	touched := false
	for _, field := range taskUpdatableFields {
		if _, present := patch[field]; present {
			touched = true
			break
		}
	}
	if !touched {
		return nil, Errors{NewFieldError("patch", "must include at least one of %v", taskUpdatableFields)}
	}

	out := &TaskUpdate{}

	if _, present := patch["name"]; present {
		name, err := Str("name", patch["name"], StrOpts{MaxLen: 255, Required: true})
		if err != nil {
			errs = append(errs, err.(*FieldError))
		} else {
			out.Name = name
		}
	}
	if _, present := patch["is_auto"]; present {
		isAuto, err := Bool("is_auto", patch["is_auto"], true)
		if err != nil {
			errs = append(errs, err.(*FieldError))
		} else {
			out.IsAuto = isAuto
		}
	}
	if _, present := patch["is_active"]; present {
		isActive, err := Bool("is_active", patch["is_active"], true)
		if err != nil {
			errs = append(errs, err.(*FieldError))
		} else {
			out.IsActive = isActive
		}
	}
	if _, present := patch["cron_expression"]; present {
		cronExpr, err := CronExpression("cron_expression", patch["cron_expression"], false)
		if err != nil {
			errs = append(errs, err.(*FieldError))
		} else {
			out.CronExpression = cronExpr
		}
	}
	if _, present := patch["task_args"]; present {
		// The patch fragment is merged into the stored args before the
		// composite check runs, so scrape_mode need not reappear here.
		args, err := Dict("task_args", patch["task_args"], true)
		if err != nil {
			errs = append(errs, err.(*FieldError))
		} else {
			out.Args = args
		}
	}

	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateMergedTaskArgs asserts the composite contract on a fully merged
// argument map. Used after deep-merging an update patch into stored args.
func ValidateMergedTaskArgs(args map[string]interface{}) error {
	if _, err := models.ParseTaskArgs(args); err != nil {
		return Errors{NewFieldError("task_args", "%v", err)}
	}
	return nil
}
