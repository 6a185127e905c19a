package flatten

import (
	"strings"
	"testing"

	"lifelog/internal/config"
	"lifelog/internal/parser/xml"
	"lifelog/internal/record"
)

const healthSample = `<HealthData>
 <ExportDate value="2024-06-01"/>
 <Workout id="w1">
  <Lap distance="400"/>
  <Lap distance="800"/>
  <Lap distance="1200"/>
 </Workout>
 <Workout id="w2">
  <Lap distance="400"/>
  <Lap distance="400"/>
  <Lap distance="400"/>
 </Workout>
</HealthData>`

func healthTargets() []config.Target {
	return []config.Target{
		{Table: "workouts", Element: "Workout"},
		{Table: "laps", Element: "Lap"},
	}
}

func healthEdges() []config.Edge {
	return []config.Edge{
		{Parent: "Workout", Child: "Lap", ParentKey: "id", ForeignKey: "workout_id"},
	}
}

func TestFlattenParentAndChildCounts(t *testing.T) {
	t.Parallel()

	root, err := xml.Parse(strings.NewReader(healthSample))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	sets := Flatten(root, healthTargets(), healthEdges())
	if len(sets) != 2 {
		t.Fatalf("Flatten() returned %d sets, want 2", len(sets))
	}

	workouts, laps := sets[0], sets[1]
	if workouts.Table != "workouts" || workouts.Len() != 2 {
		t.Fatalf("workouts: table=%q len=%d, want workouts/2", workouts.Table, workouts.Len())
	}
	if laps.Table != "laps" || laps.Len() != 6 {
		t.Fatalf("laps: table=%q len=%d, want laps/6", laps.Table, laps.Len())
	}
}

func TestFlattenInjectsNearestAncestorKey(t *testing.T) {
	t.Parallel()

	root, err := xml.Parse(strings.NewReader(healthSample))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	sets := Flatten(root, healthTargets(), healthEdges())
	laps := sets[1]

	for i, want := range []string{"w1", "w1", "w1", "w2", "w2", "w2"} {
		if got := laps.Records[i]["workout_id"]; got != want {
			t.Fatalf("laps[%d][workout_id]=%v, want %s", i, got, want)
		}
	}
}

func TestFlattenNullKeyWhenNoAncestor(t *testing.T) {
	t.Parallel()

	root, err := xml.Parse(strings.NewReader(`<Root><Lap distance="100"/></Root>`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	sets := Flatten(root, []config.Target{{Table: "laps", Element: "Lap"}}, healthEdges())
	if got := sets[0].Records[0]["workout_id"]; got != nil {
		t.Fatalf("workout_id=%v, want nil without matching ancestor", got)
	}
}

func TestFlattenUnifiesSparseAttributes(t *testing.T) {
	t.Parallel()

	root, err := xml.Parse(strings.NewReader(`<Root>
		<Record type="steps" value="10"/>
		<Record type="steps" value="20" unit="count"/>
	</Root>`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	sets := Flatten(root, []config.Target{{Table: "records", Element: "Record"}}, nil)
	set := sets[0]

	if !set.HasColumn("unit") {
		t.Fatalf("Columns=%v, want unit included", set.Columns)
	}
	if v, ok := set.Records[0]["unit"]; !ok || v != nil {
		t.Fatalf("Records[0][unit]=%v (present=%v), want explicit nil", v, ok)
	}
}

func TestFlattenCapturesElementText(t *testing.T) {
	t.Parallel()

	root, err := xml.Parse(strings.NewReader(`<Root><Note id="1">went for a run</Note></Root>`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	sets := Flatten(root, []config.Target{{Table: "notes", Element: "Note"}}, nil)
	if got := sets[0].Records[0]["text"]; got != "went for a run" {
		t.Fatalf("text=%v, want element text", got)
	}
}

func TestExplode(t *testing.T) {
	t.Parallel()

	parent := record.NewSet("moods", []string{"entry_date", "activities"})
	parent.Append(record.Record{"entry_date": "2024-01-01", "activities": "gym | reading | friends"})
	parent.Append(record.Record{"entry_date": "2024-01-02", "activities": nil})
	parent.Append(record.Record{"entry_date": "2024-01-03", "activities": "work"})

	ex := config.Explode{
		Column:      "activities",
		Separator:   " | ",
		Table:       "mood_activities",
		ForeignKey:  "entry_date",
		ValueColumn: "activity",
	}

	child := Explode(parent, "entry_date", ex)

	if child.Table != "mood_activities" {
		t.Fatalf("child.Table=%q, want mood_activities", child.Table)
	}
	if child.Len() != 4 {
		t.Fatalf("child.Len()=%d, want 4", child.Len())
	}
	if got := child.Records[0]["activity"]; got != "gym" {
		t.Fatalf("child[0][activity]=%v, want gym", got)
	}
	if got := child.Records[2]["entry_date"]; got != "2024-01-01" {
		t.Fatalf("child[2][entry_date]=%v, want parent key", got)
	}
	if got := child.Records[3]["entry_date"]; got != "2024-01-03" {
		t.Fatalf("child[3][entry_date]=%v, want 2024-01-03", got)
	}
}

func TestExplodeValueColumnDefaultsToColumn(t *testing.T) {
	t.Parallel()

	parent := record.NewSet("t", []string{"id", "tags"})
	parent.Append(record.Record{"id": "1", "tags": "a,b"})

	child := Explode(parent, "id", config.Explode{
		Column: "tags", Separator: ",", Table: "tags", ForeignKey: "parent_id",
	})

	if got := child.Records[1]["tags"]; got != "b" {
		t.Fatalf("child[1][tags]=%v, want b", got)
	}
}
