package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"giftpool/internal/models"
	"giftpool/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) upload(t *testing.T, giftID, token, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/gifts/"+giftID+"/images", &body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestUploadGiftImage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ownerToken, _ := env.register(t, "Marta", "marta@example.com")
	friendToken, _ := env.register(t, "Pablo", "pablo@example.com")
	gift := env.createGift(t, ownerToken, bicycle())

	resp := env.upload(t, gift.ID, ownerToken, "bici.png", testutil.TinyPNG(t, 64, 48))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	updated := decodeBody[models.Gift](t, resp)
	require.Len(t, updated.Images, 1)
	imageURL := updated.Images[0]
	assert.True(t, strings.HasPrefix(imageURL, "/uploads/gifts/"+gift.ID+"/"), imageURL)
	assert.True(t, strings.HasSuffix(imageURL, ".webp"), imageURL)

	t.Run("served from the upload dir", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, imageURL, "", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("not the owner", func(t *testing.T) {
		resp := env.upload(t, gift.ID, friendToken, "bici.png", testutil.TinyPNG(t, 8, 8))
		requireError(t, resp, fiber.StatusForbidden, models.CodeForbidden)
	})

	t.Run("not an image", func(t *testing.T) {
		resp := env.upload(t, gift.ID, ownerToken, "notas.txt", []byte("esto no es una foto"))
		requireError(t, resp, fiber.StatusBadRequest, models.CodeValidation)
	})
}

func TestUploadGiftImage_MissingFile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	token, _ := env.register(t, "Marta", "marta@example.com")
	gift := env.createGift(t, token, bicycle())

	resp := env.request(t, http.MethodPost, "/api/gifts/"+gift.ID+"/images", token, fiber.Map{})
	requireError(t, resp, fiber.StatusBadRequest, models.CodeValidation)
}

func TestUploadGiftImage_FlagOff(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "gift_images=off")
	token, _ := env.register(t, "Marta", "marta@example.com")
	gift := env.createGift(t, token, bicycle())

	resp := env.upload(t, gift.ID, token, "bici.png", testutil.TinyPNG(t, 8, 8))
	requireError(t, resp, fiber.StatusForbidden, models.CodeForbidden)
}
