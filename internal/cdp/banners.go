package cdp

// 页面内告警横幅。每段脚本通过元素 ID 自去重，只读取自身执行
// 环境里的 location，不携带其他参数

const bannerTraffic = `(function () {
  if (document.getElementById("websentry-malicious-warning")) return;
  var domain = window.location.hostname;
  var box = document.createElement("div");
  box.id = "websentry-malicious-warning";
  box.style.cssText = "position:fixed;bottom:20px;right:20px;width:340px;background:#fff3f3;" +
    "border:2px solid #d63031;border-radius:12px;box-shadow:0 4px 12px rgba(0,0,0,.15);" +
    "font-family:Arial,sans-serif;z-index:2147483647;";
  box.innerHTML =
    '<div style="background:#d63031;color:#fff;padding:10px;font-weight:bold;' +
    'border-radius:10px 10px 0 0;display:flex;justify-content:space-between;align-items:center;">' +
    '检测到恶意流量 / Malicious Traffic Detected' +
    '<button id="websentry-mal-close" style="background:none;border:none;color:#fff;font-size:18px;cursor:pointer;">&times;</button></div>' +
    '<div style="padding:15px;font-size:14px;color:#333;">' +
    '<p>Suspicious activity detected from <strong>' + domain + '</strong>.</p>' +
    '<button id="websentry-mal-dismiss" style="background:#ddd;border:none;padding:6px 12px;border-radius:6px;cursor:pointer;">Dismiss</button>' +
    '</div>';
  document.body.appendChild(box);
  document.getElementById("websentry-mal-close").onclick = function () { box.remove(); };
  document.getElementById("websentry-mal-dismiss").onclick = function () { box.remove(); };
})();`

const bannerInsecure = `(function () {
  if (document.getElementById("websentry-https-warning")) return;
  var box = document.createElement("div");
  box.id = "websentry-https-warning";
  box.style.cssText = "position:fixed;bottom:20px;right:20px;width:320px;background:#fff3f3;" +
    "border:2px solid #ff4d4d;border-radius:12px;box-shadow:0 4px 12px rgba(0,0,0,.15);" +
    "font-family:Arial,sans-serif;z-index:2147483647;";
  box.innerHTML =
    '<div style="background:#ff4d4d;color:#fff;padding:10px;font-weight:bold;' +
    'border-radius:10px 10px 0 0;display:flex;justify-content:space-between;align-items:center;">' +
    '安全警告 / Security Alert' +
    '<button id="websentry-https-close" style="background:none;border:none;color:#fff;font-size:18px;cursor:pointer;">&times;</button></div>' +
    '<div style="padding:15px;font-size:14px;color:#333;">' +
    '<p>You are visiting a website that is <strong>not secure (HTTP)</strong>. Your data may be at risk.</p>' +
    '<button id="websentry-https-dismiss" style="background:#ddd;border:none;padding:6px 12px;border-radius:6px;cursor:pointer;">Proceed Anyway</button>' +
    '</div>';
  document.body.appendChild(box);
  document.getElementById("websentry-https-close").onclick = function () { box.remove(); };
  document.getElementById("websentry-https-dismiss").onclick = function () { box.remove(); };
})();`

const bannerPhishing = `(function () {
  if (document.getElementById("websentry-phishing-warning")) return;
  var domain = window.location.hostname;
  var box = document.createElement("div");
  box.id = "websentry-phishing-warning";
  box.style.cssText = "position:fixed;bottom:20px;right:20px;width:340px;background:#fffbe6;" +
    "border:2px solid #e17055;border-radius:12px;box-shadow:0 4px 12px rgba(0,0,0,.15);" +
    "font-family:Arial,sans-serif;z-index:2147483647;";
  box.innerHTML =
    '<div style="background:#e17055;color:#fff;padding:10px;font-weight:bold;' +
    'border-radius:10px 10px 0 0;display:flex;justify-content:space-between;align-items:center;">' +
    '疑似钓鱼网站 / Possible Phishing Site' +
    '<button id="websentry-phish-close" style="background:none;border:none;color:#fff;font-size:18px;cursor:pointer;">&times;</button></div>' +
    '<div style="padding:15px;font-size:14px;color:#333;">' +
    '<p><strong>' + domain + '</strong> looks like a phishing page. Do not enter credentials here.</p>' +
    '<button id="websentry-phish-dismiss" style="background:#ddd;border:none;padding:6px 12px;border-radius:6px;cursor:pointer;">Dismiss</button>' +
    '</div>';
  document.body.appendChild(box);
  document.getElementById("websentry-phish-close").onclick = function () { box.remove(); };
  document.getElementById("websentry-phish-dismiss").onclick = function () { box.remove(); };
})();`
