package ipp

import (
	"testing"

	"github.com/OpenPrinting/goipp"
)

func TestValidateSettableAcceptsWhitelisted(t *testing.T) {
	attrs := goipp.Attributes{
		{Name: "job-name", Values: goipp.Values{{T: goipp.TagName, V: goipp.String("report")}}},
		{Name: "copies", Values: goipp.Values{{T: goipp.TagInteger, V: goipp.Integer(2)}}},
	}
	if got := ValidateSettable(attrs, JobSettableAttrs); got != nil {
		t.Errorf("expected no unsupported attributes, got %v", got)
	}
}

func TestValidateSettableRejectsUnknownName(t *testing.T) {
	attrs := goipp.Attributes{
		{Name: "not-a-real-attribute", Values: goipp.Values{{T: goipp.TagName, V: goipp.String("x")}}},
	}
	got := ValidateSettable(attrs, JobSettableAttrs)
	if len(got) != 1 || got[0] != "not-a-real-attribute" {
		t.Errorf("expected unknown attribute to be flagged, got %v", got)
	}
}

func TestValidateSettableRejectsWrongTag(t *testing.T) {
	attrs := goipp.Attributes{
		{Name: "job-name", Values: goipp.Values{{T: goipp.TagInteger, V: goipp.Integer(1)}}},
	}
	got := ValidateSettable(attrs, JobSettableAttrs)
	if len(got) != 1 || got[0] != "job-name" {
		t.Errorf("expected job-name to be flagged for the wrong value tag, got %v", got)
	}
}

func TestValidateSettableRejectsTooManyValues(t *testing.T) {
	attrs := goipp.Attributes{
		{Name: "job-name", Values: goipp.Values{
			{T: goipp.TagName, V: goipp.String("a")},
			{T: goipp.TagName, V: goipp.String("b")},
		}},
	}
	got := ValidateSettable(attrs, JobSettableAttrs)
	if len(got) != 1 || got[0] != "job-name" {
		t.Errorf("expected job-name to be flagged for exceeding max-count, got %v", got)
	}
}
