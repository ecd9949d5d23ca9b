package studiosdk

import (
	"github.com/goccy/go-json"
)

// codec used by imroc/req.
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
