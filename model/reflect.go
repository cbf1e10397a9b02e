// Package model - Reflection-basierte Parameter-Bindung
//
// Dieses Modul enthaelt die Reflection-Logik zum Befuellen von
// Netz-Strukturen mit Tensoren aus einem StateDict.
//
// Hauptkomponenten:
// - populateFields: Laeuft rekursiv ueber getaggte Felder
// - bind: Strikte Bindung (fehlende und unerwartete Schluessel sind Fehler)
// - ParameterNames: Liste aller erwarteten Parameternamen
//
// Tags: `pth:"name"` haengt name an den Pfad an, `pth:""` fuegt keinen
// Namensteil hinzu. Slices erhalten ihren Index als Namensteil.
package model

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/logutil"
	"github.com/sketchgan/sketchgan/ml"
)

// Fehler-Definitionen fuer die Bindung
var (
	ErrMissingTensor    = errors.New("missing tensor")
	ErrUnexpectedTensor = errors.New("unexpected tensor")
)

var tensorType = reflect.TypeOf((*ml.Tensor)(nil))

// populateFields ruft fn fuer jedes getaggte *ml.Tensor-Feld mit seinem
// vollstaendigen Namen auf. Nil-Pointer auf Strukturen werden angelegt.
func populateFields(v reflect.Value, names []string, fn func(name string, field reflect.Value)) {
	v = reflect.Indirect(v)
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := range t.NumField() {
		tag, ok := t.Field(i).Tag.Lookup("pth")
		vv := v.Field(i)
		if !ok || !vv.CanSet() {
			continue
		}

		// Kopie erstellen
		path := names
		if tag != "" {
			path = append(slices.Clone(names), tag)
		}

		tt := vv.Type()
		switch {
		case tt == tensorType:
			fn(strings.Join(path, "."), vv)
		case tt.Kind() == reflect.Pointer && tt.Elem().Kind() == reflect.Struct:
			if vv.IsNil() {
				vv.Set(reflect.New(tt.Elem()))
			}
			populateFields(vv, path, fn)
		case tt.Kind() == reflect.Struct:
			populateFields(vv, path, fn)
		case tt.Kind() == reflect.Slice || tt.Kind() == reflect.Array:
			for j := range vv.Len() {
				elem := vv.Index(j)
				if elem.Kind() == reflect.Pointer && elem.IsNil() {
					elem.Set(reflect.New(elem.Type().Elem()))
				}
				populateFields(elem, append(slices.Clone(path), strconv.Itoa(j)), fn)
			}
		}
	}
}

// ParameterNames gibt alle Parameternamen von v in Feldreihenfolge zurueck
func ParameterNames(v any) []string {
	var names []string
	populateFields(reflect.ValueOf(v), nil, func(name string, _ reflect.Value) {
		names = append(names, name)
	})
	return names
}

// bind setzt alle getaggten Tensor-Felder von v aus sd. Fehlende und
// ueberzaehlige Schluessel werden gesammelt und gemeinsam zurueckgegeben.
func bind(v any, sd *fs.StateDict) error {
	var errs []error
	seen := make(map[string]bool)

	populateFields(reflect.ValueOf(v), nil, func(name string, field reflect.Value) {
		t, ok := sd.Get(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingTensor, name))
			return
		}
		logutil.Trace("bound tensor", "name", name, "shape", t.Shape())
		seen[name] = true
		field.Set(reflect.ValueOf(t))
	})

	for _, name := range sd.Keys() {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnexpectedTensor, name))
		}
	}

	return errors.Join(errs...)
}
