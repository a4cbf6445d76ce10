package config

import (
	"reflect"
	"time"
)

// Flatten returns cfg as dotted koanf keys, the same keys accepted by
// the config file, the environment and --set. Durations are rendered
// as Go duration strings.
func Flatten(cfg *ClientConfig) map[string]any {
	out := make(map[string]any)
	flattenValue(reflect.ValueOf(cfg).Elem(), "", out)
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

func flattenValue(v reflect.Value, prefix string, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		fv := v.Field(i)
		switch {
		case fv.Type() == durationType:
			out[key] = fv.Interface().(time.Duration).String()
		case fv.Kind() == reflect.Struct:
			flattenValue(fv, key, out)
		case fv.Kind() == reflect.Slice:
			items := make([]any, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		default:
			out[key] = fv.Interface()
		}
	}
}
