package api

import (
	"context"
	"reflect"
	"strings"

	"github.com/gofiber/fiber/v2"

	"chunker/store"
	"chunker/types"
)

// ConfigReader resolves the settings currently in effect.
type ConfigReader interface {
	Config(ctx context.Context) types.LLMConfig
}

type ConfigHandler struct {
	configStore store.DBStorer
	effective   ConfigReader
}

func NewConfigHandler(cfgStore store.DBStorer, effective ConfigReader) *ConfigHandler {
	return &ConfigHandler{
		configStore: cfgStore,
		effective:   effective,
	}
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(h.effective.Config(c.UserContext()))
}

func (h *ConfigHandler) HandleSetConfig(c *fiber.Ctx) error {
	var params types.ConfigParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	querySet := columnValues(params)
	if len(querySet) == 0 {
		return ErrBadRequest()
	}

	if _, err := h.configStore.SetConfig(c.UserContext(), querySet); err != nil {
		return err
	}

	return c.JSON(h.effective.Config(c.UserContext()))
}

// columnValues maps the non-empty string fields of params to their db
// column names.
func columnValues(params types.ConfigParams) map[string]any {
	v := reflect.ValueOf(params)
	t := reflect.TypeOf(params)
	querySet := make(map[string]any)
	for i := range v.NumField() {
		dbTag := t.Field(i).Tag.Get("db")
		key := strings.Split(dbTag, ",")[0]
		if key == "" {
			continue
		}
		if value, ok := v.Field(i).Interface().(string); ok && value != "" {
			querySet[key] = value
		}
	}
	return querySet
}
