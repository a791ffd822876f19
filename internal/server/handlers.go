package server

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"roomchat/internal/auth"
	"roomchat/internal/room"
	"roomchat/internal/storage"
)

// TODO limit reading from body

type parsers struct {
	registerPool fastjson.ParserPool
	loginPool    fastjson.ParserPool
	sendPool     fastjson.ParserPool
}

type handler struct {
	logger  *zap.SugaredLogger
	auth    *auth.Service
	room    *room.Room
	parsers parsers
}

func newHandler(logger *zap.SugaredLogger, creds *auth.Service, rm *room.Room) handler {
	return handler{
		logger: logger,
		auth:   creds,
		room:   rm,
		parsers: parsers{
			registerPool: fastjson.ParserPool{},
			loginPool:    fastjson.ParserPool{},
			sendPool:     fastjson.ParserPool{},
		},
	}
}

// credentials extracts "username" and "password" string fields shared by the
// register and login endpoints; it reports whether extraction succeeded and
// writes the error response itself otherwise
func credentials(w http.ResponseWriter, v *fastjson.Value) (string, string, bool) {
	if !v.Exists("username") {
		http.Error(w, "Missing Field \"username\"", http.StatusBadRequest)
		return "", "", false
	}

	usernameValue := v.Get("username")
	if usernameValue.Type() != fastjson.TypeString {
		http.Error(w, "Field \"username\" must be a string", http.StatusBadRequest)
		return "", "", false
	}
	username := string(usernameValue.GetStringBytes())
	if len(username) == 0 {
		http.Error(w, "Field \"username\" must have non-zero length", http.StatusBadRequest)
		return "", "", false
	}

	if !v.Exists("password") {
		http.Error(w, "Missing Field \"password\"", http.StatusBadRequest)
		return "", "", false
	}

	passwordValue := v.Get("password")
	if passwordValue.Type() != fastjson.TypeString {
		http.Error(w, "Field \"password\" must be a string", http.StatusBadRequest)
		return "", "", false
	}
	password := string(passwordValue.GetStringBytes())
	if len(password) == 0 {
		http.Error(w, "Field \"password\" must have non-zero length", http.StatusBadRequest)
		return "", "", false
	}

	return username, password, true
}

// register handles HTTP requests on "/users/register" endpoint
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.registerPool.Get()
	defer h.parsers.registerPool.Put(parser)
	v, err := parser.ParseBytes(body)
	if err != nil {
		http.Error(w, "Malformed JSON", http.StatusBadRequest)
		return
	}

	username, password, ok := credentials(w, v)
	if !ok {
		return
	}

	id, err := h.auth.Register(r.Context(), username, password)
	if err != nil {
		var vErrs validator.ValidationErrors
		switch {
		case errors.Is(err, auth.ErrDuplicateIdentity):
			http.Error(w, "User already exists", http.StatusBadRequest)
		case errors.As(err, &vErrs):
			http.Error(w, "Username must be 3-32 characters and password at least 6", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	payload := []byte(`{"id":` + strconv.FormatInt(id, 10) + `}`)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// login handles HTTP requests on "/users/login" endpoint
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.loginPool.Get()
	defer h.parsers.loginPool.Put(parser)
	v, err := parser.ParseBytes(body)
	if err != nil {
		http.Error(w, "Malformed JSON", http.StatusBadRequest)
		return
	}

	username, password, ok := credentials(w, v)
	if !ok {
		return
	}

	if err := h.auth.Verify(r.Context(), username, password); err != nil {
		switch {
		case errors.Is(err, auth.ErrUnknownUser):
			http.Error(w, "User does not exist", http.StatusBadRequest)
		case errors.Is(err, auth.ErrBadCredential):
			http.Error(w, "Wrong password", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	payload, err := json.Marshal(struct {
		Username string `json:"username"`
	}{Username: username})
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// sendMessage handles HTTP requests on "/messages/send" endpoint.
// The username is taken from the request body as-is; binding it to a verified
// session is intentionally not done here.
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.sendPool.Get()
	defer h.parsers.sendPool.Put(parser)
	v, err := parser.ParseBytes(body)
	if err != nil {
		http.Error(w, "Malformed JSON", http.StatusBadRequest)
		return
	}

	if !v.Exists("username") {
		http.Error(w, "Missing Field \"username\"", http.StatusBadRequest)
		return
	}

	username := string(v.GetStringBytes("username"))
	if len(username) == 0 {
		http.Error(w, "Field \"username\" must be a string and have non-zero length", http.StatusBadRequest)
		return
	}

	if !v.Exists("body") {
		http.Error(w, "Missing Field \"body\"", http.StatusBadRequest)
		return
	}

	text := string(v.GetStringBytes("body"))

	m, err := h.room.Send(r.Context(), username, text)
	if err != nil {
		if errors.Is(err, room.ErrEmptyBody) {
			http.Error(w, "Field \"body\" must not be blank", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	payload := []byte(`{"id":` + strconv.FormatInt(m.ID, 10) + `}`)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// getMessages handles HTTP requests on "/messages/get" endpoint
func (h *handler) getMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.room.History(r.Context())
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if messages == nil {
		messages = []storage.Message{}
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// clearMessages handles HTTP requests on "/messages/clear" endpoint.
// Available to any client; authorization is out of scope.
func (h *handler) clearMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.room.Clear(r.Context()); err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"cleared":true}`)); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}
