// conf marshalling
package models

import (
	"bytes"
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	nameTag         = "conf"
	singleLineTag   = "singleline"
	DirectivePrefix = "#_"
)

type Metadata struct {
	name            string
	arrayKind       bool
	singleArrayLine bool
	structKind      bool
	anonField       bool
}

func getMetaData(rsf reflect.StructField) (meta Metadata) {
	rsfT := rsf.Type
	meta.name = rsf.Tag.Get(nameTag)

	if meta.name == "" {
		meta.name = rsf.Name
	}

	if rsfT.Kind() == reflect.Array || rsfT.Kind() == reflect.Slice {
		meta.arrayKind = true

		if rsfT.Elem().Kind() == reflect.String && rsf.Tag.Get(singleLineTag) == "true" {
			meta.singleArrayLine = true
		}
	} else if rsfT.Kind() == reflect.Struct {
		meta.structKind = true
		meta.anonField = rsf.Anonymous
		if !(rsfT.Implements(reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem())) {
			logrus.Panicln("struct needs to implement TextMarshaler")
		}
	}

	return
}

// FormatField renders one "key = value" line, prefix is "" or DirectivePrefix.
func FormatField(prefix, key, value string) string {
	return fmt.Sprintf("%s%s = %s", prefix, key, value)
}

func handlePrimitve(buffer *bytes.Buffer, rv reflect.Value, meta Metadata, prefix string) {
	switch rv.Kind() {
	case reflect.String:
		if rv.String() == "" {
			return
		}
		buffer.WriteString(FormatField(prefix, meta.name, rv.String()) + "\n")
	default:
		logrus.Panicln("only string fields are supported")
	}
}

// named structs open a section preceded by a blank line, anonymous ones are inlined
func handleStruct(buffer *bytes.Buffer, rv reflect.Value, meta Metadata) error {
	if !meta.anonField {
		buffer.WriteString(fmt.Sprintf("\n[%s]\n", meta.name))
	}
	buf, err := rv.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return err
	}
	buffer.Write(buf)
	return nil
}

func handleSingleArrayString(buffer *bytes.Buffer, rv reflect.Value, meta Metadata, prefix string) {
	if rv.Len() == 0 {
		return
	}
	vals := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		vals = append(vals, rv.Index(i).String())
	}
	buffer.WriteString(FormatField(prefix, meta.name, strings.Join(vals, ", ")) + "\n")
}

func handleArray(buffer *bytes.Buffer, rv reflect.Value, meta Metadata, prefix string) {
	if meta.singleArrayLine {
		handleSingleArrayString(buffer, rv, meta, prefix)
		return
	}

	// one line per element
	for i := 0; i < rv.Len(); i++ {
		handlePrimitve(buffer, rv.Index(i), meta, prefix)
	}
}

func confMarshallStruct(v any, prefix string) (text []byte, err error) {
	rv := reflect.ValueOf(v)
	rvT := rv.Type()

	if rv.Kind() != reflect.Struct {
		logrus.Panicln("only called on struct")
	}

	var buffer bytes.Buffer
	for i := 0; i < rv.NumField(); i++ {
		val := rv.Field(i)
		meta := getMetaData(rvT.Field(i))
		switch {
		case meta.arrayKind:
			handleArray(&buffer, val, meta, prefix)
		case meta.structKind:
			err = handleStruct(&buffer, val, meta)
		default:
			handlePrimitve(&buffer, val, meta, prefix)
		}
		if err != nil {
			return nil, err
		}
	}
	return buffer.Bytes(), nil
}

// --- TextMarshaler implemented by types ---
func (v PeerStanza) MarshalText() (text []byte, err error) {
	return confMarshallStruct(v, "")
}

func (v PeerDirectives) MarshalText() (text []byte, err error) {
	return confMarshallStruct(v, DirectivePrefix)
}

func (v PeerBlock) MarshalText() (text []byte, err error) {
	return confMarshallStruct(v, "")
}
