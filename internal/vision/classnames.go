package vision

import "fmt"

// cocoClassNames maps detector class ids to the COCO dataset labels used by
// the upstream detection models. Index equals class id.
var cocoClassNames = [...]string{
	"person", "bicycle", "car", "motorcycle", "airplane",
	"bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird",
	"cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat",
	"baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed",
	"dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock",
	"vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// ClassName resolves a detector class id to its label. Unknown ids resolve
// to a synthetic unknown_class_N label rather than an error so that models
// with extended class sets degrade gracefully.
func ClassName(classID int) string {
	if classID >= 0 && classID < len(cocoClassNames) {
		return cocoClassNames[classID]
	}
	return fmt.Sprintf("unknown_class_%d", classID)
}
