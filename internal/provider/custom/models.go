package custom

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img      string `json:"img"`                // base64 encoded image
	Model    string `json:"model,omitempty"`    // "Facenet512", "ArcFace", etc
	Detector string `json:"detector,omitempty"` // "retinaface", "mtcnn", etc
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	Embedding      []float32  `json:"embedding"`
	FacialArea     FacialArea `json:"facial_area"`
	FaceConfidence float64    `json:"face_confidence"`
}

type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (a FacialArea) Area() int {
	return a.W * a.H
}

// errorResponse is the body returned with 4xx responses.
type errorResponse struct {
	Error string `json:"error"`
}
