package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hitoshi/uniconnect/internal/auth"
	"github.com/hitoshi/uniconnect/internal/browser"
	"github.com/hitoshi/uniconnect/internal/config"
	"github.com/hitoshi/uniconnect/internal/identity"
	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/navigation"
	"github.com/hitoshi/uniconnect/internal/profile"
	"github.com/hitoshi/uniconnect/internal/security"
	"github.com/hitoshi/uniconnect/internal/session"
)

// errUsage は引数が不正な場合のエラー。使い方は出力済み。
var errUsage = errors.New("invalid arguments")

// SignInFlow はCLIのサインイン・サインアウトを行う。auth.Flowが実装する。
type SignInFlow interface {
	SignInWithGoogle(ctx context.Context) (*model.Session, error)
	SignOut(ctx context.Context) error
}

// SessionState は復元済みのセッション状態を提供する。session.Storeが実装する。
type SessionState interface {
	Init(ctx context.Context)
	Snapshot() session.State
	Close()
}

// ProfileService はプロフィールAPIの操作。profile.Clientが実装する。
type ProfileService interface {
	profile.API
	UploadAvatar(ctx context.Context, id string, image []byte, token string) (string, error)
}

// AvatarLoader はローカルファイルまたはURLから画像を読み込む。profile.AvatarSourceが実装する。
type AvatarLoader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// compile-time interface checks
var (
	_ SignInFlow     = (*auth.Flow)(nil)
	_ SessionState   = (*session.Store)(nil)
	_ ProfileService = (*profile.Client)(nil)
	_ AvatarLoader   = (*profile.AvatarSource)(nil)
)

// CLI はlogin、logout、status、profileの各サブコマンドを実行する。
type CLI struct {
	out       io.Writer
	flow      SignInFlow
	store     SessionState
	profiles  ProfileService
	avatars   AvatarLoader
	sanitizer security.TextSanitizer

	// 開発用の固定資格情報。両方が設定されている場合はセッションの代わりに使用する。
	devUserID string
	devToken  string
}

// NewCLI は設定からCLIの依存関係をワイヤリングする。
// セッションはcfg.SessionFileに保存され、次回起動時に復元される。
func NewCLI(cfg *config.Config, out io.Writer) *CLI {
	logger := slog.Default()
	policy := auth.NewDomainPolicy(cfg.AllowedDomain)

	api := identity.NewAPI(identity.Config{
		BaseURL: cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
		Timeout: cfg.HTTPTimeout,
	})
	client := identity.NewClient(api, identity.NewFileStorage(cfg.SessionFile))

	provider := auth.NewGoogleOAuthProvider(api, auth.GoogleOAuthConfig{
		RedirectURL: cfg.OAuthRedirectURL,
	})
	flow := auth.NewFlow(provider, client, browser.NewLoopback(nil, logger), policy, cfg.OAuthRedirectURL, nil)

	return &CLI{
		out:   out,
		flow:  flow,
		store: session.NewStore(client, policy, logger),
		profiles: profile.NewClient(profile.ClientConfig{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.HTTPTimeout,
		}),
		avatars:   profile.NewAvatarSource(security.NewSSRFGuard(), cfg.HTTPTimeout, cfg.AvatarMaxSize),
		sanitizer: security.NewTextSanitizer(),
		devUserID: cfg.TestUserID,
		devToken:  cfg.APIToken,
	}
}

// Run はサブコマンドを実行する。argsはサブコマンド名より後ろの引数。
func (c *CLI) Run(ctx context.Context, cmd Command, args []string) error {
	defer c.store.Close()

	switch cmd {
	case CommandLogin:
		return c.login(ctx)
	case CommandLogout:
		return c.logout(ctx)
	case CommandStatus:
		return c.status(ctx)
	case CommandProfile:
		return c.profile(ctx, args)
	default:
		fmt.Fprint(c.out, usage)
		return nil
	}
}

// login はGoogleでサインインする。復元できるセッションがあればブラウザは開かない。
func (c *CLI) login(ctx context.Context) error {
	c.store.Init(ctx)
	if state := c.store.Snapshot(); state.HasSession() {
		fmt.Fprintf(c.out, "Ya has iniciado sesión como %s\n", state.User.Email)
		return nil
	}

	fmt.Fprintln(c.out, "Abriendo el navegador para iniciar sesión con Google...")

	s, err := c.flow.SignInWithGoogle(ctx)
	if err != nil {
		return err
	}

	user := s.AuthUser()
	fmt.Fprintf(c.out, "Sesión iniciada como %s\n", displayName(user))
	return nil
}

func (c *CLI) logout(ctx context.Context) error {
	if err := c.flow.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Sesión cerrada")
	return nil
}

// status は現在のセッションを表示する。セッションがなければログインを促す。
func (c *CLI) status(ctx context.Context) error {
	c.store.Init(ctx)
	state := c.store.Snapshot()

	decision := navigation.Resolve(navigation.State{
		Loading:    state.Loading,
		HasSession: state.HasSession(),
		Route:      navigation.RouteHome,
	})
	if decision.Redirect == navigation.RouteLogin || state.Session == nil {
		fmt.Fprintln(c.out, `Sin sesión. Ejecuta "uniconnect login" para iniciar sesión.`)
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Nombre\t%s\n", orDash(state.User.FullName))
	fmt.Fprintf(tw, "Correo\t%s\n", state.User.Email)
	if exp := state.Session.ExpiresAt; !exp.IsZero() {
		fmt.Fprintf(tw, "Token vence\t%s\n", exp.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// profile はprofileのサブコマンド（show, edit, avatar）を実行する。
func (c *CLI) profile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return errUsage
	}

	switch args[0] {
	case "show":
		return c.profileShow(ctx)
	case "edit":
		return c.profileEdit(ctx, args[1:])
	case "avatar":
		if len(args) != 2 {
			fmt.Fprintln(c.out, "Uso: uniconnect profile avatar <ruta|url>")
			return errUsage
		}
		return c.profileAvatar(ctx, args[1])
	default:
		fmt.Fprint(c.out, usage)
		return errUsage
	}
}

func (c *CLI) profileShow(ctx context.Context) error {
	userID, token, err := c.requireSession(ctx)
	if err != nil {
		return err
	}

	p, err := c.profiles.GetProfile(ctx, userID, token)
	if err != nil {
		return err
	}
	return c.printProfile(*p)
}

// stringList は繰り返し指定可能な文字列フラグ。
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// profileEdit は現在のプロフィールを読み込み、指定されたフラグの項目だけを変更して保存する。
func (c *CLI) profileEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile edit", flag.ContinueOnError)
	fs.SetOutput(c.out)
	firstName := fs.String("nombre", "", "nombre")
	lastName := fs.String("apellido", "", "apellido")
	career := fs.String("carrera", "", "carrera (por ejemplo: engineering)")
	semester := fs.Int("semestre", 0, "semestre (1-10)")
	phone := fs.String("celular", "", "número de celular")
	var addSubjects, removeSubjects stringList
	fs.Var(&addSubjects, "add-materia", "materia a agregar (repetible)")
	fs.Var(&removeSubjects, "remove-materia", "id o nombre de la materia a quitar (repetible)")

	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	userID, token, err := c.requireSession(ctx)
	if err != nil {
		return err
	}

	// 1. 現在の値を読み込む
	form := profile.NewForm(c.profiles, c.sanitizer, userID, token)
	if err := form.Load(ctx); err != nil {
		return err
	}

	// 2. 指定されたフラグのみ反映する
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nombre":
			form.SetFirstName(*firstName)
		case "apellido":
			form.SetLastName(*lastName)
		case "carrera":
			form.SetCareer(*career)
		case "semestre":
			form.SetSemester(*semester)
		case "celular":
			form.SetPhone(*phone)
		}
	})
	for _, ref := range removeSubjects {
		for _, s := range form.Profile().Subjects {
			if s.ID == ref || strings.EqualFold(s.Name, strings.TrimSpace(ref)) {
				form.RemoveSubject(s.ID)
			}
		}
	}
	for _, name := range addSubjects {
		form.AddSubject(name)
	}

	// 3. 検証して保存する
	result, err := form.Save(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "Perfil actualizado")
	if result.SubjectsWarning != nil {
		fmt.Fprintf(c.out, "Aviso: %s\n", userMessage(result.SubjectsWarning))
	}
	return c.printProfile(form.Profile())
}

// profileAvatar はファイルまたはURLの画像をアバターとしてアップロードする。
func (c *CLI) profileAvatar(ctx context.Context, ref string) error {
	userID, token, err := c.requireSession(ctx)
	if err != nil {
		return err
	}

	data, err := c.avatars.Read(ctx, ref)
	if err != nil {
		return err
	}

	url, err := c.profiles.UploadAvatar(ctx, userID, data, token)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Foto actualizada: %s\n", url)
	return nil
}

// requireSession はプロフィールAPIの呼び出しに使うユーザーIDとトークンを返す。
// 開発用の資格情報が設定されていればそれを優先する。
// セッションがない場合はナビゲーションの判定に従いUNAUTHORIZEDを返す。
func (c *CLI) requireSession(ctx context.Context) (userID, token string, err error) {
	if c.devUserID != "" && c.devToken != "" {
		slog.Debug("using development credentials", slog.String("user_id", c.devUserID))
		return c.devUserID, c.devToken, nil
	}

	c.store.Init(ctx)
	state := c.store.Snapshot()

	decision := navigation.Resolve(navigation.State{
		Loading:    state.Loading,
		HasSession: state.HasSession(),
		Route:      navigation.RouteProfile,
	})
	if !decision.None() || state.Session == nil {
		return "", "", model.NewUnauthorizedError()
	}
	return state.Session.User.ID, state.Session.AccessToken, nil
}

func (c *CLI) printProfile(p model.Profile) error {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, row := range profile.NewView(p).Rows() {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}

// displayName は氏名とメールアドレスを表示用に整形する。
func displayName(u model.AuthUser) string {
	if u.FullName == "" {
		return u.Email
	}
	return fmt.Sprintf("%s <%s>", u.FullName, u.Email)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// userMessage はエラーのユーザー向けメッセージを返す。
func userMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// ErrorMessage はCLIのエラー表示用にメッセージと対処方法を整形する。
// 引数エラーの場合は使い方を出力済みのため空文字を返す。
func ErrorMessage(err error) string {
	if errors.Is(err, errUsage) {
		return ""
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Action == "" {
			return apiErr.Message
		}
		return apiErr.Message + "\n" + apiErr.Action
	}
	return "Error: " + err.Error()
}
