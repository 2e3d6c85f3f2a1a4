/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/authy/pkg/apperrors"
)

// APIError is the JSON body of every gateway error response.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RespondError renders err with the status of its kind and aborts the chain.
// Only the error's public message reaches the client. Errors that are not *apperrors.Error
// are logged and rendered as a generic internal error.
func RespondError(c *gin.Context, err error, log *zap.SugaredLogger) {
	appErr, ok := apperrors.As(err)
	if !ok {
		if log != nil {
			log.Errorw("Unclassified error", "error", err)
		}
		appErr = apperrors.Internal("internal error", err)
	}
	c.AbortWithStatusJSON(appErr.StatusCode(), APIError{
		Error: appErr.Message,
		Code:  appErr.Kind.String(),
	})
}

// RespondRedirect sends a 302 Found to location, setting the given cookies first.
func RespondRedirect(c *gin.Context, location string, cookies ...*http.Cookie) {
	for _, ck := range cookies {
		http.SetCookie(c.Writer, ck)
	}
	c.Redirect(http.StatusFound, location)
}

// RespondOK sends a 200 OK response with the given data.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}
