package server

import (
	"html/template"
	"net/http"
)

// pages holds the handful of HTML shells the API serves to browsers. The
// interesting surfaces are JSON; these pages exist so login, registration,
// the dashboard and the payment redirect have something to land on.
var pages = template.Must(template.New("pages").Parse(`
{{define "head"}}
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:#0f1117;color:#e1e4e8;min-height:100vh;display:flex;align-items:center;justify-content:center}
.card{background:#161b22;border:1px solid #30363d;border-radius:12px;padding:2rem;width:100%;max-width:420px}
h1{font-size:1.25rem;margin-bottom:.5rem;color:#f0f6fc}
p.desc{color:#8b949e;margin-bottom:1.5rem;font-size:.9rem}
label{display:block;font-size:.85rem;color:#8b949e;margin-bottom:.25rem}
input{width:100%;padding:.6rem .75rem;background:#0d1117;border:1px solid #30363d;border-radius:6px;color:#e1e4e8;font-size:.9rem;margin-bottom:1rem}
input:focus{outline:none;border-color:#58a6ff}
button{width:100%;padding:.6rem;border:none;border-radius:6px;font-size:.9rem;cursor:pointer;font-weight:500;background:#238636;color:#fff}
button:hover{background:#2ea043}
.error{background:#3d1f1f;border:1px solid #6e3630;color:#f85149;padding:.5rem .75rem;border-radius:6px;margin-bottom:1rem;font-size:.85rem;display:none}
.ok{color:#3fb950}
.bad{color:#f85149}
a{color:#58a6ff;text-decoration:none;font-size:.85rem}
</style>
{{end}}

{{define "login.html"}}<!DOCTYPE html>
<html lang="en">
<head><title>Sign in — Washdesk</title>{{template "head"}}</head>
<body>
<div class="card">
<h1>Washdesk</h1>
<p class="desc">Sign in to the laundry back office.</p>
<div class="error" id="err"></div>
<form id="login">
<label for="username">Username</label>
<input type="text" id="username" name="username" required autocomplete="username">
<label for="password">Password</label>
<input type="password" id="password" name="password" required autocomplete="current-password">
<button type="submit">Sign In</button>
</form>
<p style="margin-top:1rem"><a href="/api/customers/register">New customer? Register here</a></p>
</div>
<script>
document.getElementById('login').addEventListener('submit', async function(e){
	e.preventDefault();
	var resp = await fetch('/api/auth/login', {
		method:'POST',
		headers:{'Content-Type':'application/json','Accept':'application/json'},
		body:JSON.stringify({username:username.value,password:password.value})
	});
	var body = await resp.json();
	if(resp.ok){ window.location = '/api/dashboard/metrics'; return; }
	var el = document.getElementById('err');
	el.textContent = body.message || 'Login failed';
	el.style.display = 'block';
});
</script>
</body>
</html>{{end}}

{{define "register.html"}}<!DOCTYPE html>
<html lang="en">
<head><title>Register — Washdesk</title>{{template "head"}}</head>
<body>
<div class="card">
<h1>Create your account</h1>
<p class="desc">Register to place and track laundry orders.</p>
<div class="error" id="err"></div>
<form id="register">
<label for="username">Username</label>
<input type="text" id="username" name="username" required autocomplete="username">
<label for="email">Email</label>
<input type="email" id="email" name="email" required autocomplete="email">
<label for="first_name">First name</label>
<input type="text" id="first_name" name="first_name">
<label for="last_name">Last name</label>
<input type="text" id="last_name" name="last_name">
<label for="phone_number">Phone number</label>
<input type="tel" id="phone_number" name="phone_number" required>
<label for="password">Password</label>
<input type="password" id="password" name="password" required autocomplete="new-password" minlength="8">
<button type="submit">Register</button>
</form>
<p style="margin-top:1rem"><a href="/api/auth/login">Already registered? Sign in</a></p>
</div>
<script>
document.getElementById('register').addEventListener('submit', async function(e){
	e.preventDefault();
	var resp = await fetch('/api/customers/register', {
		method:'POST',
		headers:{'Content-Type':'application/json','Accept':'application/json'},
		body:JSON.stringify({
			username:username.value,email:email.value,
			first_name:first_name.value,last_name:last_name.value,
			phone_number:phone_number.value,password:password.value
		})
	});
	var body = await resp.json();
	if(resp.ok){ window.location = '/api/auth/login'; return; }
	var el = document.getElementById('err');
	el.textContent = body.message || 'Registration failed';
	el.style.display = 'block';
});
</script>
</body>
</html>{{end}}

{{define "dashboard.html"}}<!DOCTYPE html>
<html lang="en">
<head><title>Dashboard — Washdesk</title>{{template "head"}}</head>
<body>
<div class="card" style="max-width:720px">
<h1>Dashboard</h1>
<p class="desc" id="status">Loading metrics…</p>
<pre id="metrics" style="font-size:.8rem;overflow:auto"></pre>
</div>
<script>
fetch('/api/dashboard/metrics', {headers:{'Accept':'application/json'}})
	.then(function(r){ return r.json().then(function(b){ return {ok:r.ok, body:b}; }); })
	.then(function(res){
		var status = document.getElementById('status');
		if(!res.ok){
			status.textContent = res.body.message || 'Sign in to view your dashboard.';
			if(res.body.error_code === 'NO_TOKEN'){ window.location = '/api/auth/login'; }
			return;
		}
		status.textContent = 'Metrics';
		document.getElementById('metrics').textContent = JSON.stringify(res.body.data, null, 2);
	});
</script>
</body>
</html>{{end}}

{{define "payment_callback.html"}}<!DOCTYPE html>
<html lang="en">
<head><title>Payment — Washdesk</title>{{template "head"}}</head>
<body>
<div class="card">
{{if .Success}}
<h1 class="ok">Payment successful</h1>
{{else}}
<h1 class="bad">Payment not completed</h1>
{{end}}
<p class="desc">{{.Message}}</p>
{{if .OrderID}}<p class="desc">Order #{{.OrderID}}</p>{{end}}
<p><a href="/api/dashboard/metrics">Back to dashboard</a></p>
</div>
</body>
</html>{{end}}
`))

// renderTemplate writes one of the named HTML pages.
func (s *Server) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("template render failed")
	}
}
