package pipeline

import "github.com/readably/api/internal/model"

// span is the progress window a stage owns. Stage work maps its internal
// completion ratio onto the window, so overall progress stays comparable
// across documents of different sizes.
type span struct {
	start int
	end   int
}

var stageSpans = map[model.Stage]span{
	model.StageExtraction:      {0, 25},
	model.StageTransformation:  {25, 60},
	model.StageImageProcessing: {60, 80},
	model.StageAssembly:        {80, 84},
	model.StageStorage:         {84, 95},
	model.StageCompleting:      {95, 100},
}

// scaled maps done/total within a stage onto the stage's progress window.
func scaled(stage model.Stage, done, total int) int {
	s, ok := stageSpans[stage]
	if !ok {
		return 0
	}
	if total <= 0 || done >= total {
		return s.end
	}
	if done < 0 {
		done = 0
	}
	return s.start + (s.end-s.start)*done/total
}

// stageStart returns the opening progress value of a stage.
func stageStart(stage model.Stage) int {
	return stageSpans[stage].start
}
