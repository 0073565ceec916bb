// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package textuser_test

import (
	"encoding/xml"
	"testing"

	"github.com/ogre-sync/infsync/textuser"
	"github.com/ogre-sync/infsync/usertable"
)

func TestPropsAttrsRoundTrip(t *testing.T) {
	p := textuser.Props{Caret: 42, Selection: -7, Hue: 0.25}
	attrs := p.Attrs()
	got := textuser.ParseProps(attrs)
	if got != p {
		t.Errorf("ParseProps(Attrs()) = %+v, want %+v", got, p)
	}
}

func TestParsePropsIgnoresUnrelatedAttrs(t *testing.T) {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: "id"}, Value: "1"},
		{Name: xml.Name{Local: "caret"}, Value: "3"},
	}
	p := textuser.ParseProps(attrs)
	if p.Caret != 3 {
		t.Errorf("Caret = %d, want 3", p.Caret)
	}
	if p.Selection != 0 || p.Hue != 0 {
		t.Errorf("ParseProps = %+v, want zero Selection/Hue when absent", p)
	}
}

func TestParsePropsMalformedFallsBackToZero(t *testing.T) {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: "caret"}, Value: "not-a-number"},
		{Name: xml.Name{Local: "hue"}, Value: "also-not-a-number"},
	}
	p := textuser.ParseProps(attrs)
	if p != (textuser.Props{}) {
		t.Errorf("ParseProps with malformed attrs = %+v, want zero value", p)
	}
}

func TestKindNewUserNormalizesMalformedAttrs(t *testing.T) {
	var k textuser.Kind
	u := usertable.User{
		ID:   1,
		Name: "Ann",
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "caret"}, Value: "garbage"},
		},
	}
	got := k.NewUser(u)
	want := textuser.Props{}.Attrs()
	if len(got.Attrs) != len(want) {
		t.Fatalf("NewUser did not normalize malformed caret: Attrs = %v", got.Attrs)
	}
	for i, a := range got.Attrs {
		if a != want[i] {
			t.Errorf("NewUser Attrs[%d] = %+v, want %+v", i, a, want[i])
		}
	}
}

func TestKindNewUserPreservesValidAttrs(t *testing.T) {
	var k textuser.Kind
	p := textuser.Props{Caret: 10, Selection: 2, Hue: 0.75}
	u := usertable.User{ID: 1, Name: "Ann", Attrs: p.Attrs()}
	got := k.NewUser(u)
	if textuser.ParseProps(got.Attrs) != p {
		t.Errorf("NewUser dropped valid props: got %+v, want %+v", textuser.ParseProps(got.Attrs), p)
	}
}

func TestSetAndGet(t *testing.T) {
	table := textuser.NewTable()
	if err := table.Add(&usertable.User{ID: 1, Name: "Ann"}); err != nil {
		t.Fatal(err)
	}
	p := textuser.Props{Caret: 5, Selection: -1, Hue: 0.1}
	if !textuser.Set(table, 1, p) {
		t.Fatal("Set returned false for an existing user")
	}
	if got := textuser.Get(table, 1); got != p {
		t.Errorf("Get(1) = %+v, want %+v", got, p)
	}
}

func TestSetMissingUser(t *testing.T) {
	table := textuser.NewTable()
	if textuser.Set(table, 99, textuser.Props{}) {
		t.Error("Set should return false for a user not in the table")
	}
}

func TestGetMissingUserReturnsZeroValue(t *testing.T) {
	table := textuser.NewTable()
	if got := textuser.Get(table, 99); got != (textuser.Props{}) {
		t.Errorf("Get(missing) = %+v, want zero value", got)
	}
}
