package region

import "testing"

func TestParseSlashForm(t *testing.T) {
	p := Parse("1栋6层/A区")
	if p.BuildingNo == nil || *p.BuildingNo != "1栋" {
		t.Fatalf("building: got %v", p.BuildingNo)
	}
	if p.FloorNo == nil || *p.FloorNo != 6 {
		t.Fatalf("floor: got %v", p.FloorNo)
	}
	if p.Zone == nil || *p.Zone != "A区" {
		t.Fatalf("zone: got %v", p.Zone)
	}
}

func TestParseChineseNumerals(t *testing.T) {
	p := Parse("二号楼三层B区")
	if p.BuildingNo == nil || *p.BuildingNo != "2栋" {
		t.Fatalf("building: got %v", p.BuildingNo)
	}
	if p.FloorNo == nil || *p.FloorNo != 3 {
		t.Fatalf("floor: got %v", p.FloorNo)
	}
	if p.Zone == nil || *p.Zone != "B区" {
		t.Fatalf("zone: got %v", p.Zone)
	}
}

func TestParseEmpty(t *testing.T) {
	p := Parse("")
	if !p.Empty() {
		t.Fatalf("expected all-nil parse, got %+v", p)
	}
	p = Parse("   ")
	if !p.Empty() {
		t.Fatalf("expected all-nil parse for blank, got %+v", p)
	}
}

func TestParseTenFloors(t *testing.T) {
	p := Parse("十二层")
	if p.FloorNo == nil || *p.FloorNo != 12 {
		t.Fatalf("十二层: got %v", p.FloorNo)
	}
	p = Parse("十层")
	if p.FloorNo == nil || *p.FloorNo != 10 {
		t.Fatalf("十层: got %v", p.FloorNo)
	}
	p = Parse("二十三层")
	if p.FloorNo == nil || *p.FloorNo != 23 {
		t.Fatalf("二十三层: got %v", p.FloorNo)
	}
	p = Parse("二十层")
	if p.FloorNo == nil || *p.FloorNo != 20 {
		t.Fatalf("二十层: got %v", p.FloorNo)
	}
}

func TestParseRoomAfterFloor(t *testing.T) {
	p := Parse("2#3层304")
	if p.BuildingNo == nil || *p.BuildingNo != "2栋" {
		t.Fatalf("building: got %v", p.BuildingNo)
	}
	if p.FloorNo == nil || *p.FloorNo != 3 {
		t.Fatalf("floor: got %v", p.FloorNo)
	}
	if p.Zone == nil || *p.Zone != "304" {
		t.Fatalf("zone: got %v", p.Zone)
	}
}

func TestParseSlashNeedsTwoSegments(t *testing.T) {
	// A trailing slash leaves a single non-empty segment but two raw parts.
	p := Parse("A区/")
	if p.Zone == nil || *p.Zone != "A区" {
		t.Fatalf("zone: got %v", p.Zone)
	}
	p = Parse("无斜杠零散文本")
	if p.Zone != nil {
		t.Fatalf("zone should be nil, got %q", *p.Zone)
	}
}

func TestParseFieldsAreIndependent(t *testing.T) {
	p := Parse("6层")
	if p.BuildingNo != nil {
		t.Fatalf("building should be nil, got %q", *p.BuildingNo)
	}
	if p.FloorNo == nil || *p.FloorNo != 6 {
		t.Fatalf("floor: got %v", p.FloorNo)
	}

	// "两" counts as 2 for buildings.
	p = Parse("两栋")
	if p.BuildingNo == nil || *p.BuildingNo != "2栋" {
		t.Fatalf("building: got %v", p.BuildingNo)
	}

	// Numeral runs without 十 do not combine.
	p = Parse("二三栋")
	if p.BuildingNo != nil {
		t.Fatalf("building should be nil for 二三栋, got %q", *p.BuildingNo)
	}
}
